// oximeter-sim эмулирует протокол пульсоксиметра: line-delimited JSON
// в stdout или в serial-порт. Для стендовых прогонов relay без железа.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"math/rand"
	"os"
	"time"

	"go.bug.st/serial"
)

type readingLine struct {
	HeartRate float64 `json:"heart_rate"`
	SpO2      float64 `json:"spo2"`
}

type generator struct {
	rand     *rand.Rand
	baseHR   float64
	baseSpO2 float64
}

func newGenerator(baseHR, baseSpO2 float64) *generator {
	return &generator{
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		baseHR:   baseHR,
		baseSpO2: baseSpO2,
	}
}

// next случайное блуждание вокруг базовых значений в физиологических пределах
func (g *generator) next() readingLine {
	g.baseHR += g.rand.Float64()*4 - 2
	if g.baseHR < 45 {
		g.baseHR = 45
	}
	if g.baseHR > 130 {
		g.baseHR = 130
	}

	g.baseSpO2 += g.rand.Float64()*1 - 0.5
	if g.baseSpO2 < 85 {
		g.baseSpO2 = 85
	}
	if g.baseSpO2 > 100 {
		g.baseSpO2 = 100
	}

	return readingLine{
		HeartRate: float64(int(g.baseHR*10)) / 10,
		SpO2:      float64(int(g.baseSpO2*10)) / 10,
	}
}

func main() {
	portPath := flag.String("port", "", "serial port to write to (default stdout)")
	baud := flag.Int("baud", 9600, "baud rate")
	interval := flag.Duration("interval", 500*time.Millisecond, "delay between readings")
	baseHR := flag.Float64("hr", 75, "base heart rate")
	baseSpO2 := flag.Float64("spo2", 97, "base SpO2")
	flag.Parse()

	var out io.Writer = os.Stdout
	if *portPath != "" {
		port, err := serial.Open(*portPath, &serial.Mode{BaudRate: *baud})
		if err != nil {
			log.Fatalf("Failed to open %s: %v", *portPath, err)
		}
		defer port.Close()
		out = port
		log.Printf("Writing to %s at %d baud", *portPath, *baud)
	}

	encoder := json.NewEncoder(out)

	if err := encoder.Encode(map[string]string{"status": "ready"}); err != nil {
		log.Fatalf("Failed to write ready line: %v", err)
	}

	gen := newGenerator(*baseHR, *baseSpO2)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := encoder.Encode(gen.next()); err != nil {
			log.Fatalf("Failed to write reading: %v", err)
		}
	}
}
