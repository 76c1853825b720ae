package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeroenvanwissen/blockchain-go/messages"
)

// checkpeer dials a node, asks for its head, and prints what comes back.
// Handy for checking whether a peer is reachable and how far along it is.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: checkpeer <peer-url>")
		fmt.Println("Example: checkpeer ws://localhost:5001")
		os.Exit(1)
	}

	url := strings.TrimSuffix(os.Args[1], "/")
	if !strings.Contains(url, "://") {
		url = "ws://" + url
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", url, err)
	}
	defer conn.Close()

	probe, err := messages.NewGetLatestBlock().Encode()
	if err != nil {
		log.Fatalf("Failed to encode probe: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, probe); err != nil {
		log.Fatalf("Failed to send probe: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("No reply from %s: %v", url, err)
		}

		msg, err := messages.Parse(data)
		if err != nil {
			log.Printf("Skipping frame: %v", err)
			continue
		}

		switch msg.Type {
		case messages.TypeLatestBlock:
			block, err := msg.DecodeBlock()
			if err != nil {
				log.Fatalf("Bad head from %s: %v", url, err)
			}
			log.Printf("✓ Peer %s is at height %d", url, block.Index)
			blockJSON, _ := json.MarshalIndent(block, "", "  ")
			fmt.Println(string(blockJSON))
			return
		case messages.TypeChain:
			// The peer pushes its chain on connect; keep waiting for the
			// head reply.
			continue
		default:
			continue
		}
	}
}
