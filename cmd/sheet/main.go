// Command sheet is a terminal bulk editor for the product catalog. It talks
// to a running smtparts server through the API client and follows changes
// made elsewhere over the websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"smtparts/internal/client"
	"smtparts/internal/config"
	"smtparts/internal/websocket"
)

func main() {
	configPath := flag.String("config", "smtparts.yaml", "path to config file")
	baseURL := flag.String("url", "", "API base URL (overrides config)")
	user := flag.String("user", "", "username (overrides config)")
	password := flag.String("password", "", "password (overrides config)")
	q := flag.String("q", "", "only load products matching this search")
	category := flag.String("category", "", "only load this category")
	watch := flag.Bool("watch", true, "reload when products change on the server")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *baseURL != "" {
		cfg.Client.BaseURL = *baseURL
	}
	if *user != "" {
		cfg.Client.Username = *user
	}
	if *password != "" {
		cfg.Client.Password = *password
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := client.New(cfg.Client.BaseURL, 15*time.Second)
	loginCtx, loginCancel := context.WithTimeout(ctx, 10*time.Second)
	_, err = c.Login(loginCtx, cfg.Client.Username, cfg.Client.Password)
	loginCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "login to %s: %v\n", c.BaseURL(), err)
		os.Exit(1)
	}

	m := newModel(ctx, c, client.ProductQuery{Q: *q, Category: *category})
	p := tea.NewProgram(m, tea.WithAltScreen())

	if *watch {
		go func() {
			err := c.Watch(ctx, func(ev websocket.Event) { p.Send(eventMsg(ev)) })
			if err != nil && ctx.Err() == nil {
				p.Send(rowsMsg{err: fmt.Errorf("watch: %w", err)})
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
