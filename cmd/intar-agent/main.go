// Command intar-agent runs inside a guest VM and answers probe requests
// sent by the host orchestrator over a virtio-serial channel.
package main

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"intar.dev/intar/probe"
)

// candidatePorts is the set of device paths the guest virtio-serial port
// might appear under, checked in order. intar's VM Supervisor names the
// port "intar.agent"; udev typically maps that to the first path, but
// bare vport numbering is the fallback when udev rules aren't installed.
var candidatePorts = []string{
	"/dev/virtio-ports/intar.agent",
	"/dev/vport0p1",
}

const maxReopenBackoff = 5 * time.Second

func main() {
	zapLog, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer zapLog.Sync()
	log := zapr.NewLogger(zapLog)

	for {
		port, path, err := openPort()
		if err != nil {
			log.Error(err, "open virtio-serial port, retrying")
			continue
		}
		log.Info("connected", "path", path)
		serve(port, log)
		port.Close()
		log.Info("connection closed, reopening")
	}
}

// openPort tries each candidate path with exponential backoff (bounded at
// maxReopenBackoff), never giving up, since the agent has no way to
// report failure except by not answering, so it must keep trying
// indefinitely.
func openPort() (*os.File, string, error) {
	backoff := 100 * time.Millisecond
	for {
		for _, path := range candidatePorts {
			f, err := os.OpenFile(path, os.O_RDWR, 0)
			if err == nil {
				return f, path, nil
			}
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxReopenBackoff {
			backoff = maxReopenBackoff
		}
	}
}

// serve reads ndjson requests from conn, evaluates each, and writes the
// reply, single-threaded: the wire protocol has no pipelining requirement
// the guest side needs to honor, only the host side demultiplexes.
func serve(conn io.ReadWriter, log logr.Logger) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()

		var env struct {
			ReqID uint64 `json:"req_id"`
		}
		json.Unmarshal(line, &env)

		resp := handle(line, log)
		writeReply(writer, env.ReqID, resp, log)
	}
}

func handle(line []byte, log logr.Logger) probe.Response {
	req, err := probe.DecodeRequest(line)
	if err != nil {
		log.Error(err, "decode request")
		return probe.ErrorResponse(err.Error())
	}

	switch req.Type {
	case "ping":
		return probe.PongResponse(uptimeSeconds())
	case "check_probe":
		result := probe.Evaluate(req.ID, *req.Spec)
		return probe.ProbeResultResponse(result)
	case "check_all":
		results := make([]probe.Result, len(req.Probes))
		for i, p := range req.Probes {
			results[i] = probe.Evaluate(p.ID, p.Spec)
		}
		return probe.AllResultsResponse(results)
	default:
		return probe.ErrorResponse("unknown request type")
	}
}

func writeReply(w *bufio.Writer, reqID uint64, resp probe.Response, log logr.Logger) {
	bs, err := json.Marshal(resp)
	if err != nil {
		log.Error(err, "marshal response")
		return
	}

	// Splice req_id into the encoded object without needing Response to
	// know about it: Response's MarshalJSON is the wire-protocol encoder
	// shared with the host side, which never sees req_id on its own replies.
	bs = bs[:len(bs)-1]
	bs = append(bs, []byte(`,"req_id":`)...)
	bs = append(bs, []byte(strconv.FormatUint(reqID, 10))...)
	bs = append(bs, '}', '\n')

	if _, err := w.Write(bs); err != nil {
		log.Error(err, "write response")
		return
	}
	w.Flush()
}

var bootTime = time.Now()

func uptimeSeconds() uint64 {
	return uint64(time.Since(bootTime).Seconds())
}
