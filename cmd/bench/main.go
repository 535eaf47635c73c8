package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "server address")
	n := flag.Int("n", 5000, "requests")
	conc := flag.Int("c", 32, "concurrency")
	valSize := flag.Int("val", 128, "value size bytes")
	keys := flag.Int("keys", 0, "distinct keys (0 = one per request)")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	var wg sync.WaitGroup
	var hits, misses, failures atomic.Int64
	start := time.Now()
	sem := make(chan struct{}, *conc)

	for i := 0; i < *n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			k := i
			if *keys > 0 {
				k = rand.Intn(*keys)
			}
			key := fmt.Sprintf("k%d", k)

			// Read-through: GET, and PUT on a miss.
			resp, err := client.Get(*addr + "/kv/" + key)
			if err != nil {
				failures.Add(1)
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				hits.Add(1)
				return
			}
			misses.Add(1)

			payload := bytes.Repeat([]byte{byte(rand.Intn(255))}, *valSize)
			req, _ := http.NewRequest(http.MethodPut, *addr+"/kv/"+key, bytes.NewReader(payload))
			resp, err = client.Do(req)
			if err != nil {
				failures.Add(1)
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}(i)
	}
	wg.Wait()
	dur := time.Since(start)

	ops := hits.Load() + 2*misses.Load()
	fmt.Printf("Completed %d ops in %s (%.2f ops/s)\n", ops, dur, float64(ops)/dur.Seconds())
	if total := hits.Load() + misses.Load(); total > 0 {
		fmt.Printf("Hit ratio: %.2f%% (%d hits, %d misses, %d failures)\n",
			100*float64(hits.Load())/float64(total), hits.Load(), misses.Load(), failures.Load())
	}
}
