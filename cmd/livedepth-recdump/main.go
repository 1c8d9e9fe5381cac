// livedepth-recdump prints the contents of a frame recording produced
// with the -record flag.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sylwesterdigital/webcam-monocular-depth/internal/output"
	"github.com/sylwesterdigital/webcam-monocular-depth/internal/protocol"
)

func main() {
	limit := flag.Int("n", 0, "Print at most n records (0 = all)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-n count] <recording file>\n", os.Args[0])
		os.Exit(2)
	}

	records, err := output.ReadAll(flag.Arg(0))
	if err != nil {
		log.Fatalf("read recording: %v", err)
	}

	for i, rec := range records {
		if *limit > 0 && i >= *limit {
			break
		}
		ts := time.Unix(0, int64(rec.Ts*1e9)).UTC().Format(time.RFC3339Nano)
		source := "live"
		if rec.Synthetic {
			source = "synthetic"
		}
		header, _, _, err := protocol.DecodeFrame(rec.Blob)
		if err != nil {
			fmt.Printf("%6d  %s  %-9s  %8d bytes  (undecodable: %v)\n", i, ts, source, len(rec.Blob), err)
			continue
		}
		fmt.Printf("%6d  %s  %-9s  %8d bytes  %dx%d stride=%d fx=%.2f\n",
			i, ts, source, len(rec.Blob), header.W, header.H, header.Stride, header.Fx)
	}
	fmt.Printf("%d records total\n", len(records))
}
