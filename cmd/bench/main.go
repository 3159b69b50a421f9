package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var solution = [9][9]int{
	{5, 3, 4, 6, 7, 8, 9, 1, 2},
	{6, 7, 2, 1, 9, 5, 3, 4, 8},
	{1, 9, 8, 3, 4, 2, 5, 6, 7},
	{8, 5, 9, 7, 6, 1, 4, 2, 3},
	{4, 2, 6, 8, 5, 3, 7, 9, 1},
	{7, 1, 3, 9, 2, 4, 8, 5, 6},
	{9, 6, 1, 5, 3, 7, 2, 8, 4},
	{2, 8, 7, 4, 1, 9, 6, 3, 5},
	{3, 4, 5, 2, 8, 6, 1, 7, 9},
}

// puzzle blanks n random cells of the known solution.
func puzzle(rng *rand.Rand, n int) [][]int {
	rows := make([][]int, 9)
	for r := range rows {
		rows[r] = append([]int(nil), solution[r][:]...)
	}
	for _, cell := range rng.Perm(81)[:n] {
		rows[cell/9][cell%9] = 0
	}
	return rows
}

func checkFlags(n, conc, blanks int) error {
	switch {
	case n < 0:
		return fmt.Errorf("requests must not be negative, got %d", n)
	case conc < 1:
		return fmt.Errorf("concurrency must be at least 1, got %d", conc)
	case blanks < 0 || blanks > 81:
		return fmt.Errorf("blanks must be between 0 and 81, got %d", blanks)
	}
	return nil
}

func main() {
	addr := flag.String("addr", "http://localhost:8000", "node HTTP address")
	n := flag.Int("n", 50, "requests")
	conc := flag.Int("c", 1, "concurrency (a node runs one solve at a time)")
	blanks := flag.Int("blanks", 2, "blank cells per puzzle")
	timeout := flag.Duration("timeout", 2*time.Minute, "per request timeout")
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	if err := checkFlags(*n, *conc, *blanks); err != nil {
		log.Fatal("invalid flags", zap.Error(err))
	}

	client := &http.Client{Timeout: *timeout}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		latencies []time.Duration
		failures  atomic.Int64
		conflicts atomic.Int64
	)
	start := time.Now()
	ch := make(chan int, *conc)

	for i := 0; i < *n; i++ {
		body, _ := json.Marshal(map[string]any{"sudoku": puzzle(rng, *blanks)})
		wg.Add(1)
		ch <- 1
		go func(i int) {
			defer wg.Done()
			defer func() { <-ch }()

			t0 := time.Now()
			resp, err := client.Post(*addr+"/solve", "application/json", bytes.NewReader(body))
			if err != nil {
				failures.Add(1)
				log.Warn("request failed", zap.Int("i", i), zap.Error(err))
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusOK:
				mu.Lock()
				latencies = append(latencies, time.Since(t0))
				mu.Unlock()
			case http.StatusConflict:
				conflicts.Add(1)
			default:
				failures.Add(1)
				log.Warn("unexpected status", zap.Int("i", i), zap.Int("status", resp.StatusCode))
			}
		}(i)
	}
	wg.Wait()
	dur := time.Since(start)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	fmt.Printf("Completed %d solves in %s (%.2f solves/s), %d conflicts, %d failures\n",
		len(latencies), dur, float64(len(latencies))/dur.Seconds(), conflicts.Load(), failures.Load())
	if len(latencies) > 0 {
		fmt.Printf("p50=%s p95=%s max=%s\n",
			latencies[len(latencies)/2],
			latencies[len(latencies)*95/100],
			latencies[len(latencies)-1])
	}
}
