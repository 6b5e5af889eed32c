// Command client sends protocol to 127.0.0.1:1667 and prints the reply.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"p4rpc/client"
	"p4rpc/message"
	"p4rpc/rpc"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.DialAddr(ctx, "127.0.0.1:1667", rpc.NewRouter(), client.Config{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := conn.Send(message.New("protocol", nil, nil)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	reply, err := conn.ReadPacket()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(reply)
}
