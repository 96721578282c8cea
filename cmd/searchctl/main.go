package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/qiaoborui/telegram-search-bot/internal/config"
	"github.com/qiaoborui/telegram-search-bot/internal/format"
	"github.com/qiaoborui/telegram-search-bot/internal/paths"
	"github.com/qiaoborui/telegram-search-bot/internal/search"
	"github.com/qiaoborui/telegram-search-bot/internal/store"
)

func main() {
	dataDir := flag.String("data-dir", "", "data directory (default ~/.searchbot)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	dir := *dataDir
	if dir == "" {
		dir = paths.BaseDir()
	}
	cfg, err := config.Load(filepath.Join(dir, "config.toml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(dir, "archive.db")
	}

	db, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot open archive at %s: %v\n", dbPath, err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: migrate: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "search":
		cmdSearch(db, cfg, strings.Join(args[1:], " "))
	case "chats":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: searchctl chats <list|enable|disable> [chat-id]")
			os.Exit(1)
		}
		cmdChats(db, args[1], args[2:], *jsonFlag)
	case "stats":
		cmdStats(db, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: searchctl [--data-dir <dir>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  search <query>       Search enabled chats")
	fmt.Fprintln(os.Stderr, "  chats list           List known chats")
	fmt.Fprintln(os.Stderr, "  chats enable <id>    Make a chat searchable")
	fmt.Fprintln(os.Stderr, "  chats disable <id>   Remove a chat from search")
	fmt.Fprintln(os.Stderr, "  stats                Show archive counters")
}

func cmdSearch(db *store.DB, cfg *config.Config, raw string) {
	chats, err := db.EnabledChats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(chats) == 0 {
		fmt.Println("No searchable chats. Enable one with: searchctl chats enable <id>")
		return
	}
	scope := make(search.Scope, 0, len(chats))
	for _, c := range chats {
		scope = append(scope, search.ChatRef{ID: c.ID, Title: c.Title})
	}

	q := search.Parse(raw)
	exec := search.NewExecutor(db, zap.NewNop())
	res, err := exec.Execute(q, scope, cfg.PageSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(format.New(cfg.Location()).Results(res.Rows, res.Total))
}

func cmdChats(db *store.DB, subcmd string, rest []string, jsonOut bool) {
	switch subcmd {
	case "list":
		chats, err := db.EnabledChats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if jsonOut {
			outputJSON(chats)
			return
		}
		if len(chats) == 0 {
			fmt.Println("No enabled chats.")
			return
		}
		for _, c := range chats {
			fmt.Printf("%d\t%s\n", c.ID, c.Title)
		}
	case "enable", "disable":
		if len(rest) < 1 {
			fmt.Fprintf(os.Stderr, "usage: searchctl chats %s <chat-id>\n", subcmd)
			os.Exit(1)
		}
		id, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: bad chat id %q\n", rest[0])
			os.Exit(1)
		}
		if err := db.SetChatEnabled(id, subcmd == "enable"); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("chat %d %sd\n", id, subcmd)
	default:
		fmt.Fprintln(os.Stderr, "usage: searchctl chats <list|enable|disable> [chat-id]")
		os.Exit(1)
	}
}

func cmdStats(db *store.DB, jsonOut bool) {
	chats, err := db.ChatCount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	users, err := db.UserCount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	messages, err := db.MessageCount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(map[string]int64{"chats": chats, "users": users, "messages": messages})
		return
	}
	fmt.Printf("Chats:    %d\n", chats)
	fmt.Printf("Users:    %d\n", users)
	fmt.Printf("Messages: %d\n", messages)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
