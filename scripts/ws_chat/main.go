// Command ws_chat is a manual smoke client for the chat widget. It
// connects to a room as an anonymous visitor (or as a user when -token
// is given) and relays stdin lines as chat messages, printing every
// fragment the server pushes back.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

func main() {
	var (
		base  = flag.String("base", "ws://localhost:8080", "server base URL")
		room  = flag.String("room", "", "room name (defaults to the session key)")
		token = flag.String("token", "", "JWT for an authenticated connection")
	)
	flag.Parse()

	session := uuid.NewString()
	name := *room
	if name == "" {
		name = session
	}

	url := fmt.Sprintf("%s/ws/chatroom/%s", *base, name)
	if *token != "" {
		url += "?token=" + *token
	} else {
		url += "?session=" + session
	}

	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	fmt.Printf("connected to room %s\n", name)

	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				log.Printf("read: %v", err)
				os.Exit(0)
			}
			fmt.Printf("<< %s\n", data)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		payload, _ := json.Marshal(map[string]any{"message": scanner.Text()})
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			log.Fatalf("write: %v", err)
		}
	}
}
