// Command send-trigger connects to a ravine trigger listener and sends event
// bytes, optionally finishing with the 0xFF shutdown byte.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"
)

const shutdownByte = 0xff

func main() {
	addr := flag.String("addr", "localhost:9000", "trigger listener address")
	values := flag.String("bytes", "1", "comma-separated event values (0-254)")
	interval := flag.Duration("interval", 500*time.Millisecond, "delay between events")
	shutdown := flag.Bool("shutdown", true, "send 0xFF after the events to stop the pipeline")
	flag.Parse()

	events, err := parseBytes(*values)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *shutdown {
		events = append(events, shutdownByte)
	}

	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()

	for i, b := range events {
		if i > 0 {
			time.Sleep(*interval)
		}
		if _, err := conn.Write([]byte{b}); err != nil {
			log.Fatalf("failed to send 0x%02x: %v", b, err)
		}
		log.Printf("sent 0x%02x", b)
	}
}

// parseBytes parses "1,2,0x10" into event values. 0xFF is reserved for
// shutdown.
func parseBytes(s string) ([]byte, error) {
	var out []byte
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseUint(field, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid event value %q: %w", field, err)
		}
		if v == shutdownByte {
			return nil, fmt.Errorf("0xff is the shutdown byte; use -shutdown")
		}
		out = append(out, byte(v))
	}
	return out, nil
}
