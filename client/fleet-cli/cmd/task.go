package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	taskWaitID  string
	taskTimeout int
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Dispatch and inspect fleet tasks",
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit [type] [parameters-json]",
	Short: "Submit a task without waiting for its result",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		submitTask(args[0], args[1])
	},
}

var taskExecCmd = &cobra.Command{
	Use:   "exec [type] [parameters-json]",
	Short: "Submit a task and wait for a delegate to respond",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		executeTask(args[0], args[1])
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending tasks for the account",
	Run: func(cmd *cobra.Command, args []string) {
		listTasks()
	},
}

var taskAwaitCmd = &cobra.Command{
	Use:   "await [wait-id]",
	Short: "Wait for the response bound to a wait id",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		awaitResult(args[0])
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskSubmitCmd)
	taskCmd.AddCommand(taskExecCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskAwaitCmd)

	taskSubmitCmd.Flags().StringVar(&taskWaitID, "wait-id", "", "correlation token a caller can await on")
	taskExecCmd.Flags().IntVar(&taskTimeout, "timeout", 30, "seconds to wait for the response")
	taskAwaitCmd.Flags().IntVar(&taskTimeout, "timeout", 30, "seconds to wait for the response")
}

func taskPayload(taskType, parameters string) []byte {
	payload := map[string]interface{}{
		"taskType":   taskType,
		"parameters": json.RawMessage(parameters),
	}
	if taskWaitID != "" {
		payload["waitId"] = taskWaitID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("Error creating JSON payload: %v", err)
	}
	return body
}

func submitTask(taskType, parameters string) {
	resp, err := http.Post(accountURL("/tasks"), "application/json", bytes.NewBuffer(taskPayload(taskType, parameters)))
	if err != nil {
		log.Fatalf("Error submitting task: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("Failed to submit task, status code: %d", resp.StatusCode)
	}

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}

	fmt.Printf("Task submitted successfully!\nTask ID: %s\n", result["taskId"])
	fmt.Printf("To wait for the result, run: fleet-cli task await %s --account %s\n", result["waitId"], accountID)
}

func executeTask(taskType, parameters string) {
	url := fmt.Sprintf("%s?timeoutSeconds=%d", accountURL("/tasks/execute"), taskTimeout)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(taskPayload(taskType, parameters)))
	if err != nil {
		log.Fatalf("Error executing task: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Task did not complete (status %d): %s", resp.StatusCode, body)
	}
	fmt.Println(string(body))
}

func listTasks() {
	resp, err := http.Get(accountURL("/tasks"))
	if err != nil {
		log.Fatalf("Error listing tasks: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Failed to list tasks, status code: %d", resp.StatusCode)
	}
	fmt.Println(string(body))
}

func awaitResult(waitID string) {
	url := fmt.Sprintf("%s?timeoutSeconds=%d", accountURL("/waits/%s", waitID), taskTimeout)
	resp, err := http.Get(url)
	if err != nil {
		log.Fatalf("Error awaiting result: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Println(string(body))
	case http.StatusGatewayTimeout:
		log.Fatalf("Timed out waiting for a response on %s", waitID)
	default:
		log.Fatalf("Await failed (status %d): %s", resp.StatusCode, body)
	}
}
