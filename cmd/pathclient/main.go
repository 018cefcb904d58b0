package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"tileworld/internal/network"
)

func main() {
	server := flag.String("server", "127.0.0.1:19000", "tile world UDP address")
	fromX := flag.Int("fromx", 0, "start tile X")
	fromY := flag.Int("fromy", 0, "start tile Y")
	toX := flag.Int("tox", 0, "end tile X")
	toY := flag.Int("toy", 0, "end tile Y")
	timeout := flag.Duration("timeout", 3*time.Second, "time to wait for the reply")
	flag.Parse()

	req := network.PathRequest{
		RequestID: "pathclient",
		FromX:     *fromX,
		FromY:     *fromY,
		ToX:       *toX,
		ToY:       *toY,
	}
	data, err := network.Pack(network.MessagePathRequest, 1, req)
	if err != nil {
		log.Fatalf("encode: %v", err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		log.Fatalf("listen udp: %v", err)
	}
	defer conn.Close()

	target, err := net.ResolveUDPAddr("udp", *server)
	if err != nil {
		log.Fatalf("resolve server: %v", err)
	}

	conn.SetDeadline(time.Now().Add(*timeout))
	if _, err := conn.WriteToUDP(data, target); err != nil {
		log.Fatalf("send: %v", err)
	}

	buf := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			log.Fatalf("recv: %v", err)
		}
		env, err := network.Decode(buf[:n])
		if err != nil {
			log.Fatalf("decode env: %v", err)
		}
		// Tile batches may arrive first when this address is subscribed.
		if env.Type != network.MessagePathResponse {
			continue
		}
		var resp network.PathResponse
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			log.Fatalf("decode payload: %v", err)
		}
		if !resp.Found {
			fmt.Printf("No route for %s from (%d,%d) to (%d,%d)\n", resp.RequestID, *fromX, *fromY, *toX, *toY)
			return
		}
		fmt.Printf("Route for %s (%d tiles):\n", resp.RequestID, len(resp.Route))
		for i, step := range resp.Route {
			fmt.Printf(" %d: (%d,%d)\n", i, step.X, step.Y)
		}
		return
	}
}
