package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"

	"github.com/itohio/gofreqmeter/pkg/pagestore"
	"github.com/itohio/gofreqmeter/pkg/sample"
)

func dumpCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	points := fs.Int("points", 0, "Maximum samples per channel and page (0 = all)")
	from := fs.Int("from", 0, "First page index")
	count := fs.Int("n", 0, "Number of pages (0 = all)")
	cfg, _, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	pages, flash, err := openPages(cfg)
	if err != nil {
		return err
	}
	defer flash.Close()

	return dump(pages, stdout, *from, *count, *points)
}

// dump writes one JSON line per written page. Corrupt pages are logged and skipped.
func dump(pages *pagestore.Store, w io.Writer, from, count, points int) error {
	enc := json.NewEncoder(w)
	var werr error
	dumped := 0
	err := pages.Scan(func(index int, rec *pagestore.Record, err error) bool {
		if index < from {
			return true
		}
		if count > 0 && dumped >= count {
			return false
		}
		if err != nil {
			log.Printf("dump: page %d: %v", index, err)
			return true
		}
		if points > 0 {
			for ch := range rec.Samples {
				rec.Samples[ch] = sample.Downsample(nil, rec.Samples[ch], points)
			}
		}
		if werr = enc.Encode(rec); werr != nil {
			return false
		}
		dumped++
		return true
	})
	if err != nil {
		return err
	}
	if werr != nil {
		return fmt.Errorf("dump: %w", werr)
	}
	return nil
}
