// pod-example is a runnable demonstration pod exercising the registry,
// scheduler, and dispatcher against the same vars the protocol's test
// harness describes: test-pod/add-sync, test-pod/range-stream,
// test-pod/error, and test-pod/mis-implementation.
//
// Usage:
//
//	pod-example [--transport stdio|socket] [--port N] [--jsonrpc] [pod-id] [max-concurrent]
//
// Transport selection follows BABASHKA_POD_TRANSPORT unless --transport is
// given explicitly; --port and PORT are equivalent for socket mode.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/lotuc/pod-go/internal/jsonrpc"
	"github.com/lotuc/pod-go/internal/payload"
	"github.com/lotuc/pod-go/internal/registry"
	"github.com/lotuc/pod-go/internal/transport"
	"github.com/lotuc/pod-go/pod"
)

func main() {
	transportFlag := flag.String("transport", "", "stdio|socket (default: from BABASHKA_POD_TRANSPORT)")
	portFlag := flag.Int("port", 0, "preferred TCP port in socket mode (default: from PORT, 0 = OS-chosen)")
	jsonrpcFlag := flag.Bool("jsonrpc", false, "speak JSON-RPC 2.0 instead of the native bencode frames")
	flag.Parse()

	podID := ""
	maxConcurrent := int64(0)
	if args := flag.Args(); len(args) > 0 {
		podID = args[0]
		if len(args) > 1 {
			n, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				log.Fatalf("pod-example: max-concurrent must be an integer: %v", err)
			}
			maxConcurrent = n
		}
	}

	useSocket := *transportFlag == "socket"
	if *transportFlag == "" {
		useSocket = os.Getenv("BABASHKA_POD_TRANSPORT") == "socket"
	}

	var tr transport.Transport
	var closeTransport func()

	if useSocket && !*jsonrpcFlag {
		port := *portFlag
		if port == 0 {
			if envPort := os.Getenv("PORT"); envPort != "" {
				if n, err := strconv.Atoi(envPort); err == nil {
					port = n
				}
			}
		}
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("pod-example: getwd: %v", err)
		}
		tcp, err := transport.NewTCP(port, cwd)
		if err != nil {
			log.Fatalf("pod-example: tcp transport: %v", err)
		}
		log.Printf("pod-example: listening on 127.0.0.1:%d", tcp.Port())
		tr = tcp
		closeTransport = func() { tcp.Close() }
	} else if *jsonrpcFlag {
		// The JSON-RPC adapter speaks newline-delimited JSON directly over
		// stdio; socket mode for --jsonrpc isn't wired into this demo
		// binary (the TCP transport's Transport interface only exposes
		// bencode framing, not the raw conn the adapter would need).
		tr = jsonrpc.New(os.Stdin, os.Stdout, payload.New())
	} else {
		tr = transport.NewStdio(os.Stdin, os.Stdout)
	}

	cleanupDone := false
	cleanup := func() {
		cleanupDone = true
		if closeTransport != nil {
			closeTransport()
		}
	}

	p := pod.New(pod.Config{
		PodID:          podID,
		MaxConcurrency: maxConcurrent,
		Transport:      tr,
		Cleanup:        cleanup,
	})

	registerTestPodVars(p)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("pod-example: received %v, shutting down", sig)
		if !cleanupDone {
			cleanup()
		}
		os.Exit(0)
	}()

	if err := p.Run(); err != nil {
		log.Fatalf("pod-example: dispatcher: %v", err)
	}
}

func registerTestPodVars(p *pod.Pod) {
	p.AddVar(pod.VarSpec{
		NS:   "test-pod",
		Name: "add-sync",
		Meta: `{:doc "sums its arguments"}`,
		Handler: func(ctx *pod.Context, args []any, d registry.Derefer) {
			var sum float64
			for _, a := range args {
				n, _ := a.(float64)
				sum += n
			}
			_ = d.SuccessValue(int64(sum))
		},
	})

	p.AddVar(pod.VarSpec{
		NS:   "test-pod",
		Name: "range-stream",
		Meta: `{:doc "streams start..end by step, then finishes"}`,
		Handler: func(ctx *pod.Context, args []any, d registry.Derefer) {
			start, end, step := rangeArgs(args)
			for i := start; i < end; i += step {
				_ = d.Callback(i)
			}
			_ = d.Success()
		},
	})

	p.AddVar(pod.VarSpec{
		NS:   "test-pod",
		Name: "error",
		Meta: `{:doc "always fails with structured ex-data"}`,
		Handler: func(ctx *pod.Context, args []any, d registry.Derefer) {
			panic(pod.NewError("Illegal arguments", map[string]any{"args": args}))
		},
	})

	p.AddVar(pod.VarSpec{
		NS:   "test-pod",
		Name: "mis-implementation",
		Meta: `{:doc "demonstrates a var that forgets to call a terminal derefer method"}`,
		Handler: func(ctx *pod.Context, args []any, d registry.Derefer) {
			// Deliberately returns without Success/SuccessValue/Error: the
			// scheduler must synthesize the "illegal var implementation"
			// error per §7.6.
			if len(args) > 0 {
				if s, _ := args[0].(string); s == "emit-then-forget" {
					_ = d.Callback("partial progress")
				}
			}
		},
	})
}

func rangeArgs(args []any) (start, end, step int64) {
	step = 1
	get := func(i int) int64 {
		if i >= len(args) {
			return 0
		}
		n, _ := args[i].(float64)
		return int64(n)
	}
	start = get(0)
	end = get(1)
	if len(args) > 2 {
		if s := get(2); s != 0 {
			step = s
		}
	}
	return
}
