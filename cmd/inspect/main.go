package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"

	"mentorlink/repositories"
)

// Offline dump of the badger store. The server must not hold the lock,
// or the DB is opened through the read-only bypass below.
func main() {
	dbPath := flag.String("db", "/tmp/mentorlink/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan ('msg:' for messages, 'user:' for accounts)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Conversation", "Timestamp", "Sender", "Recipient", "Content"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				rawKey := string(item.Key())

				var m repositories.DiskMessage
				if err := json.Unmarshal(v, &m); err != nil {
					// Log the broken row and keep scanning instead of stopping the dump
					fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
					return nil
				}

				content := m.Content
				if len(content) > 60 {
					content = content[:57] + "..."
				}

				table.Append([]string{
					rawKey,
					string(m.ConversationID),
					m.At.Format("15:04:05"),
					m.SenderID,
					m.RecipientID,
					content,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// A dirty value log needs one open in write mode to truncate
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
