package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hostprotocols/ncpd/engine"
)

var CmdLog = log.New(os.Stderr, filepath.Base(os.Args[0])+": ", 0)

var (
	impAddrFlag   = flag.String("imp-addr", "localhost:7770", "Set the host:`port` of the IMP line-driver process.")
	metricsFlag   = flag.String("metrics-addr", "", "Serve Prometheus metrics on this `host:port`; empty disables it.")
	primeFlag     = flag.Duration("prime-interval", time.Second, "Spacing between the start-up keep-alive NOPs.")
	traceFlag     = flag.Bool("trace", false, "Log every NCP message dispatch at debug level.")
)

func main() {
	log.SetFlags(0)
	flag.Parse()
	engine.Trace = *traceFlag

	sockPath := os.Getenv("NCP")
	if sockPath == "" {
		CmdLog.Fatal("NCP environment variable must name the application socket path")
	}

	appConn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sockPath, Net: "unixgram"})
	if err != nil {
		CmdLog.Printf("bind application socket %s: %v", sockPath, err)
		os.Exit(1)
	}
	defer os.Remove(sockPath)
	defer appConn.Close()

	impConn, err := net.Dial("tcp", *impAddrFlag)
	if err != nil {
		CmdLog.Printf("dial IMP driver %s: %v", *impAddrFlag, err)
		os.Exit(1)
	}
	defer impConn.Close()

	var reg prometheus.Registerer
	if *metricsFlag != "" {
		r := prometheus.NewRegistry()
		reg = r
		go serveMetrics(*metricsFlag, r)
	}

	e := engine.New(engine.Config{PrimeInterval: *primeFlag},
		engine.NewLengthPrefixedIMP(impConn),
		engine.NewUnixAppTransport(appConn),
		engine.NewMetrics(reg))

	if err := e.Prime(); err != nil {
		CmdLog.Fatalf("prime sequence: %v", err)
	}

	reactor := engine.NewReactor(e)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logrus.WithField("signal", sig).Info("shutting down")
		reactor.Stop()
	}()

	if err := reactor.Run(); err != nil {
		CmdLog.Fatalf("reactor: %v", err)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithError(err).Error("metrics server exited")
	}
}
