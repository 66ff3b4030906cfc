package cmd

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var delegateStatus string

var delegateCmd = &cobra.Command{
	Use:   "delegate",
	Short: "Inspect and manage the delegate fleet",
}

var delegateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List delegates for the account",
	Run: func(cmd *cobra.Command, args []string) {
		listDelegates()
	},
}

var delegateGetCmd = &cobra.Command{
	Use:   "get [delegate-id]",
	Short: "Show one delegate",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		getDelegate(args[0])
	},
}

var delegateDeleteCmd = &cobra.Command{
	Use:   "delete [delegate-id]",
	Short: "Remove a delegate from the fleet",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		deleteDelegate(args[0])
	},
}

var delegateWatchCmd = &cobra.Command{
	Use:   "watch [delegate-id]",
	Short: "Watch queued-task pings for a delegate in real time",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		watchDelegate(args[0])
	},
}

var delegateInstallerCmd = &cobra.Command{
	Use:   "installer",
	Short: "Print the delegate bootstrap script for the account",
	Run: func(cmd *cobra.Command, args []string) {
		printInstaller()
	},
}

func init() {
	rootCmd.AddCommand(delegateCmd)
	delegateCmd.AddCommand(delegateListCmd)
	delegateCmd.AddCommand(delegateGetCmd)
	delegateCmd.AddCommand(delegateDeleteCmd)
	delegateCmd.AddCommand(delegateWatchCmd)
	delegateCmd.AddCommand(delegateInstallerCmd)

	delegateListCmd.Flags().StringVar(&delegateStatus, "status", "", "filter by status (ENABLED, DISABLED)")
}

func listDelegates() {
	listURL := accountURL("/delegates")
	if delegateStatus != "" {
		listURL += "?status=" + url.QueryEscape(delegateStatus)
	}

	resp, err := http.Get(listURL)
	if err != nil {
		log.Fatalf("Error listing delegates: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Failed to list delegates, status code: %d", resp.StatusCode)
	}
	fmt.Println(string(body))
}

func getDelegate(id string) {
	resp, err := http.Get(accountURL("/delegates/%s", id))
	if err != nil {
		log.Fatalf("Error fetching delegate: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		log.Fatalf("Delegate %s not found", id)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Failed to fetch delegate, status code: %d", resp.StatusCode)
	}
	fmt.Println(string(body))
}

func deleteDelegate(id string) {
	req, err := http.NewRequest(http.MethodDelete, accountURL("/delegates/%s", id), nil)
	if err != nil {
		log.Fatalf("Error creating request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Error deleting delegate: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		log.Fatalf("Failed to delete delegate, status code: %d", resp.StatusCode)
	}
	fmt.Printf("Delegate %s deleted.\n", id)
}

func watchDelegate(id string) {
	u, err := url.Parse(accountURL("/delegates/%s/ws", id))
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Error connecting to WebSocket: %v", err)
	}
	defer c.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Connection closed:", err)
				return
			}
			fmt.Println(string(message))
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		log.Println("Interrupted, closing connection...")
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}

func printInstaller() {
	resp, err := http.Get(accountURL("/delegates/installer"))
	if err != nil {
		log.Fatalf("Error fetching installer script: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Failed to fetch installer script, status code: %d", resp.StatusCode)
	}
	fmt.Println(string(body))
}
