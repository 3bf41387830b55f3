package main

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/flashdb/flashkv/internal/protocol"
)

type benchOptions struct {
	addr     string
	password string
	clients  int
	requests int
	pipeline int
	test     string
}

func newBenchCmd() *cobra.Command {
	opts := benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark a running FlashKV server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.clients <= 0 || opts.requests <= 0 || opts.pipeline <= 0 {
				return fmt.Errorf("clients, requests and pipeline must be positive")
			}
			if _, err := benchCommand(opts.test, 0, 0); err != nil {
				return err
			}
			return runBench(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "localhost:6379", "Server address")
	f.StringVar(&opts.password, "password", "", "Password sent with AUTH before the run")
	f.IntVar(&opts.clients, "clients", 50, "Number of parallel clients")
	f.IntVar(&opts.requests, "requests", 100000, "Total number of requests")
	f.IntVar(&opts.pipeline, "pipeline", 1, "Commands sent per round trip")
	f.StringVar(&opts.test, "test", "mixed", "Workload: set, get, mixed, incr, append, setbit, bitcount, ping")
	return cmd
}

// benchCommand builds request j of client id for the given workload.
func benchCommand(test string, id, j int) ([]string, error) {
	key := fmt.Sprintf("key:%d:%d", id, j)
	switch test {
	case "set":
		return []string{"SET", key, fmt.Sprintf("value:%d:%d", id, j)}, nil
	case "get":
		return []string{"GET", key}, nil
	case "mixed":
		if j%2 == 0 {
			return []string{"SET", key, fmt.Sprintf("value:%d:%d", id, j)}, nil
		}
		return []string{"GET", fmt.Sprintf("key:%d:%d", id, j-1)}, nil
	case "incr":
		return []string{"INCR", fmt.Sprintf("counter:%d", id)}, nil
	case "append":
		return []string{"APPEND", fmt.Sprintf("log:%d", id), "x"}, nil
	case "setbit":
		return []string{"SETBIT", fmt.Sprintf("bitmap:%d", id), fmt.Sprint(j % 65536), "1"}, nil
	case "bitcount":
		return []string{"BITCOUNT", fmt.Sprintf("bitmap:%d", id)}, nil
	case "ping":
		return []string{"PING"}, nil
	}
	return nil, fmt.Errorf("unknown test %q", test)
}

func runBench(cmd *cobra.Command, opts benchOptions) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "====== FlashKV Benchmark ======")
	fmt.Fprintf(out, "Server: %s\n", opts.addr)
	fmt.Fprintf(out, "Clients: %d\n", opts.clients)
	fmt.Fprintf(out, "Requests: %d\n", opts.requests)
	fmt.Fprintf(out, "Pipeline: %d\n", opts.pipeline)
	fmt.Fprintf(out, "Test: %s\n\n", opts.test)

	var completed, failed atomic.Int64
	reqPerClient := opts.requests / opts.clients

	start := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < opts.clients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()

			conn, err := net.Dial("tcp", opts.addr)
			if err != nil {
				failed.Add(int64(reqPerClient))
				return
			}
			defer conn.Close()

			writer := protocol.NewWriter(conn)
			writer.SetAutoFlush(false)
			reader := protocol.NewReader(conn)

			if opts.password != "" {
				writer.WriteCommand("AUTH", opts.password)
				writer.Flush()
				if v, err := reader.ReadValue(); err != nil || v.Type == protocol.TypeError {
					failed.Add(int64(reqPerClient))
					return
				}
			}

			for j := 0; j < reqPerClient; j += opts.pipeline {
				batch := min(opts.pipeline, reqPerClient-j)
				for k := 0; k < batch; k++ {
					args, _ := benchCommand(opts.test, clientID, j+k)
					writer.WriteCommand(args...)
				}
				if err := writer.Flush(); err != nil {
					failed.Add(int64(batch))
					return
				}
				for k := 0; k < batch; k++ {
					v, err := reader.ReadValue()
					if err != nil {
						failed.Add(int64(batch - k))
						return
					}
					if v.Type == protocol.TypeError {
						failed.Add(1)
						continue
					}
					completed.Add(1)
				}
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	done := completed.Load()
	fmt.Fprintln(out, "====== Results ======")
	fmt.Fprintf(out, "Total time: %v\n", elapsed)
	fmt.Fprintf(out, "Completed: %d\n", done)
	fmt.Fprintf(out, "Errors: %d\n", failed.Load())
	if done > 0 {
		fmt.Fprintf(out, "Requests/sec: %.2f\n", float64(done)/elapsed.Seconds())
		fmt.Fprintf(out, "Avg latency: %.3f ms\n", float64(elapsed.Microseconds())/1000/float64(done)*float64(opts.clients))
	}
	return nil
}
