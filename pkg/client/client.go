package client

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/protocol"
	"github.com/cuemby/drover/pkg/types"
)

// Submit sends one job to the master's submission endpoint and blocks until
// the output comes back. It drives the client side of the submission
// protocol: announce the job, upload both payloads, request the output, and
// receive it. The returned buffer is the byte-exact output the worker
// produced.
func Submit(masterAddr string, exe, input types.Buffer) (types.Buffer, error) {
	logger := log.WithComponent("client")

	nc, err := net.DialTimeout("tcp", masterAddr, 10*time.Second)
	if err != nil {
		return types.Buffer{}, fmt.Errorf("client: dial %s: %w", masterAddr, err)
	}
	conn := protocol.NewConn(nc)
	defer conn.Close()

	req := protocol.JobRequest{
		ExeName: exe.Name,
		ExeSize: exe.Size(),
		InName:  input.Name,
		InSize:  input.Size(),
	}
	if err := conn.WriteControl(protocol.FormatSubmitRequest(req)); err != nil {
		return types.Buffer{}, err
	}
	if err := conn.Expect(protocol.TokenJobRequestOK); err != nil {
		return types.Buffer{}, fmt.Errorf("client: job request rejected: %w", err)
	}

	logger.Info().Str("exe_name", exe.Name).Int("exe_size", exe.Size()).Msg("Uploading executable")
	if err := conn.WriteChunks(exe.Data); err != nil {
		return types.Buffer{}, err
	}
	if err := conn.Expect(protocol.TokenBufferOK); err != nil {
		return types.Buffer{}, fmt.Errorf("client: executable upload rejected: %w", err)
	}

	logger.Info().Str("in_name", input.Name).Int("in_size", input.Size()).Msg("Uploading input")
	if err := conn.WriteChunks(input.Data); err != nil {
		return types.Buffer{}, err
	}
	if err := conn.Expect(protocol.TokenBufferOK); err != nil {
		return types.Buffer{}, fmt.Errorf("client: input upload rejected: %w", err)
	}

	if err := conn.WriteToken(protocol.TokenRequestJobOutput); err != nil {
		return types.Buffer{}, err
	}

	// The master blocks here until dispatch resolves; the read waits with it.
	line, err := conn.ReadControl()
	if err != nil {
		return types.Buffer{}, fmt.Errorf("client: awaiting output: %w", err)
	}
	meta, err := protocol.ParseOutputMeta(line)
	if err != nil {
		return types.Buffer{}, fmt.Errorf("client: job failed: %s", line)
	}
	if err := conn.WriteToken(protocol.TokenJobOutputOK); err != nil {
		return types.Buffer{}, err
	}

	data, err := conn.ReadChunks(meta.Size)
	if err != nil {
		return types.Buffer{}, err
	}
	if err := conn.WriteToken(protocol.TokenBufferOK); err != nil {
		return types.Buffer{}, err
	}

	logger.Info().Str("out_name", meta.Name).Int("out_size", meta.Size).Msg("Output received")
	return types.Buffer{Name: meta.Name, Data: data}, nil
}

// SubmitFiles reads the executable and input from disk, submits them, and
// writes the returned output into outDir under its wire name. It
// returns the path of the written output file.
func SubmitFiles(masterAddr, exePath, inputPath, outDir string) (string, error) {
	exe, err := readBuffer(exePath)
	if err != nil {
		return "", err
	}
	input, err := readBuffer(inputPath)
	if err != nil {
		return "", err
	}

	output, err := Submit(masterAddr, exe, input)
	if err != nil {
		return "", err
	}

	outPath := filepath.Join(outDir, filepath.Base(output.Name))
	if err := os.WriteFile(outPath, output.Data, 0o644); err != nil {
		return "", fmt.Errorf("client: write output: %w", err)
	}
	return outPath, nil
}

// readBuffer loads a file as a wire buffer named by its basename.
func readBuffer(path string) (types.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Buffer{}, fmt.Errorf("client: read %s: %w", path, err)
	}
	return types.Buffer{Name: filepath.Base(path), Data: data}, nil
}
