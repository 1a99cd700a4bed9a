package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// collect-events reads server JSON logs on stdin and writes a per-route
// summary of request observability events.
func main() {
	var outPath, eventName, eventDomain string
	flag.StringVar(&outPath, "out", "", "path to write aggregated metrics JSON")
	flag.StringVar(&eventName, "event-name", requestEventName, "observability event name to collect")
	flag.StringVar(&eventDomain, "event-domain", requestEventDomain, "observability event domain to match")
	flag.Parse()

	if outPath == "" {
		log.Fatal("-out is required")
	}

	c := newCollector(eventName, eventDomain)
	reader := bufio.NewReader(os.Stdin)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			c.ingest(line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read logs: %v", err)
		}
	}

	summary := c.summary()
	data, err := sonic.ConfigStd.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatalf("encode summary: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
		log.Fatalf("write summary: %v", err)
	}
	fmt.Println(summary.ShortString())
}
