// seed-labels creates labels from a text file, one name per line.
// Names are stored exactly as written apart from surrounding whitespace; existing names are skipped.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-labels -file labels.txt
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/royalty_backend/config"
	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"bitbucket.org/mmdatafocus/royalty_backend/utils"
)

func main() {
	file := flag.String("file", "", "Required: file with one label name per line")
	clientID := flag.Int("client-id", 0, "Client id to attach to created labels")
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		os.Exit(1)
	}
	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *file, err)
		os.Exit(1)
	}
	defer f.Close()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized. Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := context.Background()
	var created, skipped, failed int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		input := &models.NewLabel{ClientId: *clientID, Name: name}
		if err := utils.ValidateStruct(input); err != nil {
			fmt.Fprintf(os.Stderr, "skip %q: %v\n", name, utils.ProcessValidationErrors(err))
			failed++
			continue
		}
		_, err := models.CreateLabel(ctx, input)
		switch {
		case errors.Is(err, models.ErrDuplicateLabel):
			skipped++
		case err != nil:
			fmt.Fprintf(os.Stderr, "create %q: %v\n", name, err)
			failed++
		default:
			created++
		}
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
		os.Exit(1)
	}

	fmt.Printf("labels created=%d existing=%d failed=%d\n", created, skipped, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
