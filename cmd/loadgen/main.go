package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config lists the job chains to start through the API.
type Config struct {
	Jobs   []string `json:"jobs"`
	Repeat int      `json:"repeat,omitempty"`
}

func main() {
	configPath := flag.String("config", "jobs.json", "Path to JSON config file with job ids")
	apiBase := flag.String("api", "http://localhost:30080", "API base URL (nodePort when hitting Kind from host; e.g. http://localhost:30080)")
	flag.Parse()

	accepted, err := run(*configPath, *apiBase, nil)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("accepted %d runs", accepted)
}

// run loads config from configPath and submits every job Repeat times concurrently.
// If client is nil, a default HTTP client (30s timeout) is used.
func run(configPath, apiBase string, client *http.Client) (int, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return 0, err
	}

	baseURL, err := url.Parse(apiBase)
	if err != nil {
		return 0, err
	}

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)
	for round := 0; round < cfg.Repeat; round++ {
		for i, job := range cfg.Jobs {
			wg.Add(1)
			go func(idx int, j string) {
				defer wg.Done()
				if submitRun(client, baseURL, idx, j) {
					accepted.Add(1)
				}
			}(round*len(cfg.Jobs)+i, job)
		}
	}
	wg.Wait()
	log.Printf("submitted %d runs", cfg.Repeat*len(cfg.Jobs))
	return int(accepted.Load()), nil
}

// loadConfig reads and parses the JSON config file. Repeat defaults to 1.
func loadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if len(cfg.Jobs) == 0 {
		return cfg, errNoJobs
	}
	if cfg.Repeat < 1 {
		cfg.Repeat = 1
	}
	return cfg, nil
}

var errNoJobs = fmt.Errorf("config has no jobs")

func submitRun(client *http.Client, base *url.URL, idx int, job string) bool {
	u := *base
	u.Path = "/runs"
	u.RawQuery = url.Values{"job": {job}}.Encode()

	resp, err := client.Post(u.String(), "", nil)
	if err != nil {
		log.Printf("[%d] job=%q err=%v", idx, job, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		log.Printf("[%d] job=%q status=%d", idx, job, resp.StatusCode)
		return false
	}
	log.Printf("[%d] job=%q accepted", idx, job)
	return true
}
