// Command client is a minimal line-oriented terminal client: it frames
// stdin lines onto the wire and prints whatever frames arrive, nothing
// more. A graphical client is outside this project's scope.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"

	"chatserver/internal/codec"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5008", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	go readLoop(conn)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := codec.Send(conn, scanner.Bytes()); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			return
		}
	}
}

func readLoop(conn net.Conn) {
	acc := &codec.Accumulator{}
	buf := make([]byte, 65536)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, msg := range acc.Feed(buf[:n]) {
				fmt.Println(string(msg))
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
			return
		}
	}
}
