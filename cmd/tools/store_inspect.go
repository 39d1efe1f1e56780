// Command store_inspect dumps the persisted message log as a table, for
// debugging a broker's BadgerDB offline.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"chat-broker/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	room := flag.String("room", "", "Restrict the dump to one room")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	header := fmt.Sprintf(" Message log: %s ", *dbPath)
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(header))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Room", "Sender", "At", "Body"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	prefix := []byte("msg:")
	if *room != "" {
		// Keys carry the room hex-encoded; see repositories.MessageRepository.
		prefix = []byte(fmt.Sprintf("msg:%s:", hex.EncodeToString([]byte(*room))))
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var dm repositories.DiskMessage
				if err := json.Unmarshal(v, &dm); err != nil {
					// Log and keep going instead of aborting the dump.
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}
				table.Append([]string{
					dm.Room,
					dm.Sender,
					time.Unix(0, dm.At).UTC().Format(time.RFC3339Nano),
					dm.Body,
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
		log.Fatal("Error while scanning messages: ", err)
	}

	table.Render()
}
