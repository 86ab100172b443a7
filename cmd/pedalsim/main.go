// Command pedalsim reads a circuit description file, then streams raw
// little-endian float32 mono PCM from standard input through the
// simulator and writes the processed samples to standard output.
package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"github.com/spf13/pflag"

	"github.com/edp1096/pedalsim/pkg/circuit"
	"github.com/edp1096/pedalsim/pkg/engine"
	"github.com/edp1096/pedalsim/pkg/parser"
	"github.com/edp1096/pedalsim/pkg/util"
)

const version = "0.1.0"

// chunkSamples is the fixed-size block read from stdin per iteration.
const chunkSamples = 512

func main() {
	os.Exit(run())
}

func run() int {
	sampleRate := pflag.Float64P("sample-rate", "s", 48000, "audio sample rate in Hz")
	maxIter := pflag.IntP("max-iterations", "i", 50, "Newton-Raphson max iterations per sample")
	tolerance := pflag.Float64P("tolerance", "t", 1e-4, "Newton-Raphson convergence tolerance, volts")
	showVersion := pflag.BoolP("version", "V", false, "print version and exit")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: pedalsim [flags] <circuit-file>\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *showVersion {
		fmt.Println("pedalsim", version)
		return 0
	}
	if pflag.NArg() != 1 {
		pflag.Usage()
		return 1
	}

	src, err := os.ReadFile(pflag.Arg(0))
	if err != nil {
		log.Printf("pedalsim: reading %s: %v", pflag.Arg(0), err)
		return 2
	}

	sim, err := buildSimulator(string(src), *sampleRate, *maxIter, *tolerance)
	if err != nil {
		log.Printf("pedalsim: %v", err)
		return 1
	}
	log.Printf("pedalsim: running at %s, Newton tolerance %s",
		util.FormatFrequency(*sampleRate), util.FormatValueFactor(*tolerance, "V"))

	if err := stream(sim, os.Stdin, os.Stdout); err != nil {
		log.Printf("pedalsim: %v", err)
		return 2
	}
	return 0
}

// buildSimulator parses and builds a circuit already read from disk.
// Only invalid-circuit failures (parse or build errors) can occur
// here; the file-read step that can fail with an I/O error happens
// in run, before this is called, so the exit codes stay distinct
// (1 for an invalid circuit, 2 for I/O errors).
func buildSimulator(src string, sampleRate float64, maxIter int, tolerance float64) (*engine.Simulator, error) {
	desc, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing circuit: %w", err)
	}

	built, err := circuit.Build(desc)
	if err != nil {
		return nil, fmt.Errorf("building circuit: %w", err)
	}

	return engine.WithConfig(built, sampleRate, maxIter, tolerance)
}

// stream reads fixed-size chunks of little-endian float32 PCM from r,
// feeds each sample to sim.Step and writes the result to w in the
// same format.
func stream(sim *engine.Simulator, r io.Reader, w io.Writer) error {
	in := bufio.NewReaderSize(r, chunkSamples*4)
	out := bufio.NewWriterSize(w, chunkSamples*4)
	defer out.Flush()

	buf := make([]byte, chunkSamples*4)
	for {
		n, err := io.ReadFull(in, buf)
		if n > 0 {
			if werr := processChunk(sim, buf[:n], out); werr != nil {
				return werr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return out.Flush()
		}
		if err != nil {
			return err
		}
	}
}

func processChunk(sim *engine.Simulator, buf []byte, out *bufio.Writer) error {
	samples := len(buf) / 4
	var outBuf [4]byte
	for i := 0; i < samples; i++ {
		bits := binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
		x := math.Float32frombits(bits)
		sim.SetInput(x)
		y := sim.Step()
		binary.LittleEndian.PutUint32(outBuf[:], math.Float32bits(y))
		if _, err := out.Write(outBuf[:]); err != nil {
			return err
		}
	}
	return nil
}
