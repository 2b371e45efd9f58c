// Command echoserver is a minimal demo server implementing corpc's wire
// framing: it reads a request frame and echoes the body back under the
// same call id, so the client library can be exercised end-to-end against
// a real TCP listener. The client-side rpc package treats it only as an
// external collaborator, never importing it.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"io"
	"net"
	"net/http"

	"github.com/vbirds/corpc/cmn/nlog"
	"github.com/vbirds/corpc/sys"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	reqHeadSize  = 20
	respHeadSize = 12
)

var (
	connCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "corpc_echoserver",
		Name:      "connections_open",
		Help:      "Number of currently open client connections.",
	})
	framesEchoed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "corpc_echoserver",
		Name:      "frames_echoed_total",
		Help:      "Total number of request frames echoed back to callers.",
	})
)

func main() {
	listenAddr := flag.String("listen", "127.0.0.1:9000", "TCP address to accept corpc connections on")
	metricsAddr := flag.String("metrics", "127.0.0.1:9090", "HTTP address to serve /metrics on")
	flag.Parse()

	sys.SetMaxProcs()

	prometheus.MustRegister(connCount, framesEchoed)

	ln, err := net.Listen("tcp4", *listenAddr)
	if err != nil {
		nlog.Errorf("echoserver: listen %s: %v", *listenAddr, err)
		return
	}
	nlog.Infof("echoserver: listening on %s", *listenAddr)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		nlog.Infof("echoserver: metrics on http://%s/metrics", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			nlog.Warningf("echoserver: metrics server: %v", err)
		}
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			nlog.Errorf("echoserver: accept: %v", err)
			return
		}
		go serve(nc)
	}
}

func serve(nc net.Conn) {
	connCount.Inc()
	defer func() {
		nc.Close()
		connCount.Dec()
	}()

	br := bufio.NewReader(nc)
	head := make([]byte, reqHeadSize)
	for {
		if _, err := io.ReadFull(br, head); err != nil {
			return
		}
		bodySize := binary.BigEndian.Uint32(head[0:4])
		callID := binary.BigEndian.Uint64(head[12:20])

		var body []byte
		if bodySize > 0 {
			body = make([]byte, bodySize)
			if _, err := io.ReadFull(br, body); err != nil {
				return
			}
		}

		resp := make([]byte, respHeadSize+len(body))
		binary.BigEndian.PutUint32(resp[0:4], uint32(len(body)))
		binary.BigEndian.PutUint64(resp[4:12], callID)
		copy(resp[respHeadSize:], body)

		if _, err := nc.Write(resp); err != nil {
			return
		}
		framesEchoed.Inc()
	}
}
