package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

const usage = `usage: pingwatch-cli [-api URL] [-key KEY] <command>

commands:
  status          list every target with its current status
  ping <name>     probe one target now (does not affect state)
  reload          re-read the target file
  testalert       broadcast a test message to all subscribers
  purge           drop stored state of targets no longer configured
`

type client struct {
	base string
	key  string
	http *http.Client
}

func main() {
	api := flag.String("api", envOr("API_BASE", "http://localhost:8080"), "pingwatch API base URL")
	key := flag.String("key", os.Getenv("API_KEY"), "API key (public for reads, admin for the rest)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	c := client{base: strings.TrimRight(*api, "/"), key: *key, http: &http.Client{Timeout: 30 * time.Second}}
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "status":
		err = c.status()
	case "ping":
		if len(args) < 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = c.ping(args[1])
	case "reload":
		err = c.raw(http.MethodPost, "/api/reload")
	case "testalert":
		err = c.raw(http.MethodPost, "/api/alerts/test")
	case "purge":
		err = c.raw(http.MethodDelete, "/api/states/orphans")
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func (c client) do(method, path string, out any) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

type targetView struct {
	Name     string    `json:"name"`
	Host     string    `json:"host"`
	Status   string    `json:"status"`
	Fails    int       `json:"fails"`
	Succ     int       `json:"succ"`
	LastUp   time.Time `json:"last_up"`
	LastDown time.Time `json:"last_down"`
}

func (c client) status() error {
	var views []targetView
	if err := c.do(http.MethodGet, "/api/targets", &views); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tHOST\tSTATUS\tFAILS\tLAST UP\tLAST DOWN")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", v.Name, v.Host, v.Status, v.Fails, when(v.LastUp), when(v.LastDown))
	}
	return tw.Flush()
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func (c client) ping(name string) error {
	var out struct {
		Target    string  `json:"target"`
		Host      string  `json:"host"`
		Up        bool    `json:"up"`
		Message   string  `json:"message"`
		LatencyMS float64 `json:"latency_ms"`
		Reason    string  `json:"reason"`
		DNS       *struct {
			Class string   `json:"class"`
			IPs   []string `json:"ips"`
		} `json:"dns"`
	}
	if err := c.do(http.MethodPost, "/api/targets/"+url.PathEscape(name)+"/probe", &out); err != nil {
		return err
	}
	if out.Up {
		fmt.Printf("✅ %s (%s) reachable in %.1f ms\n", out.Target, out.Host, out.LatencyMS)
		return nil
	}
	fmt.Printf("❌ %s (%s) not reachable: %s\n", out.Target, out.Host, out.Reason)
	if out.DNS != nil {
		fmt.Printf("   dns: %s %v\n", out.DNS.Class, out.DNS.IPs)
	}
	return nil
}

func (c client) raw(method, path string) error {
	var out map[string]any
	if err := c.do(method, path, &out); err != nil {
		return err
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
	return nil
}
