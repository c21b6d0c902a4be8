// cryptotree-server: evaluates encrypted queries against a packed forest
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"
	"github.com/dhuynh95/cryptotree/cryptotree"
	"github.com/dhuynh95/cryptotree/transport"
	"github.com/dhuynh95/cryptotree/utils"
)

var (
	bundleFile = flag.String("bundle", "bundle.json", "Weight bundle written by extract")
	listen     = flag.String("listen", "", "TCP address to serve on (empty: one session over stdin/stdout)")
	reduce     = flag.Bool("reduce", true, "Sum class slots on the server before replying")
	verbose    = flag.Bool("verbose", false, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	bundle, err := cryptotree.LoadBundle(*bundleFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bundle: %v\n", err)
		os.Exit(1)
	}
	log("Model ready: %d trees, %d classes, width %d, digest %s", bundle.NTrees, bundle.NClasses, bundle.Width(), bundle.Digest())

	if *listen == "" {
		if err := serve(transport.NewProtocol(os.Stdin, os.Stdout), bundle); err != nil {
			log("Session failed: %v", err)
			os.Exit(1)
		}
		log("Server done")
		return
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log("Listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			log("Accept: %v", err)
			continue
		}
		go func(conn net.Conn) {
			defer conn.Close()
			log("Session from %s", conn.RemoteAddr())
			if err := serve(transport.NewProtocol(conn, conn), bundle); err != nil {
				log("Session %s failed: %v", conn.RemoteAddr(), err)
			}
		}(conn)
	}
}

// serve runs one session. Keys are per client, so each session builds its
// own evaluator around the shared bundle.
func serve(p *transport.Protocol, bundle *cryptotree.WeightBundle) error {
	params, evk, digest, err := p.ReceiveSetup()
	if err != nil {
		return err
	}
	if digest != bundle.Digest() {
		return reject(p, fmt.Errorf("client built for model %s, serving %s", digest, bundle.Digest()))
	}
	eval, err := cryptotree.NewEvaluator(ckkswrapper.NewServerKit(params, evk), bundle)
	if err != nil {
		return reject(p, err)
	}
	if err := p.SendReady(transport.ReadyPayload{Digest: digest, NClasses: bundle.NClasses, Reduced: *reduce}); err != nil {
		return err
	}
	log("Setup done (logN=%d, levels=%d, depth=%d)", params.LogN(), params.MaxLevel(), eval.Depth())

	for {
		id, ct, err := p.ReceiveQuery()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		stats := &utils.TimingStats{}
		outs, err := eval.EvaluateTimed(ct, *reduce, stats)
		if err != nil {
			log("Query %d: %v", id, err)
			if err := p.SendError(fmt.Errorf("query %d: %w", id, err)); err != nil {
				return err
			}
			continue
		}
		if err := p.SendResult(id, outs); err != nil {
			return err
		}
		log("Query %d answered in %v", id, stats.Inference())
	}
}

// reject tells the client why the session ends. A failure to deliver the
// message is joined to err.
func reject(p *transport.Protocol, err error) error {
	return errors.Join(err, p.SendError(err))
}

func log(format string, args ...interface{}) {
	if *verbose {
		fmt.Fprintf(os.Stderr, "[SERVER] "+format+"\n", args...)
	}
}
