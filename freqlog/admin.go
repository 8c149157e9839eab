package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"

	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/pagestore"
	"github.com/itohio/gofreqmeter/pkg/readout"
)

func openPages(cfg *config.Config) (*pagestore.Store, *pagestore.FileFlash, error) {
	flash, err := pagestore.OpenFileFlash(cfg.Storage.Image, cfg.Storage.PageSize, cfg.Storage.Pages)
	if err != nil {
		return nil, nil, err
	}
	return pagestore.New(flash, nil), flash, nil
}

func eraseCmd(args []string) error {
	fs := flag.NewFlagSet("erase", flag.ContinueOnError)
	cfg, _, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	pages, flash, err := openPages(cfg)
	if err != nil {
		return err
	}
	defer flash.Close()

	done, err := pages.Erase(context.Background())
	if err != nil {
		return err
	}
	if err := <-done; err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	log.Printf("erased %d pages of %s", cfg.Storage.Pages, cfg.Storage.Image)
	return nil
}

func statusCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	cfg, _, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	pages, flash, err := openPages(cfg)
	if err != nil {
		return err
	}
	defer flash.Close()

	st, err := readout.BuildStatus(config.NewStore(cfg, 0), pages, nil)
	if err != nil {
		return err
	}
	data, err := st.JSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}
