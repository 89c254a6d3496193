package tcs34725

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

// fakeBus emulates the register file. Single byte writes are stored so that
// read-modify-write sequences see their own results.
type fakeBus struct {
	mu     sync.Mutex
	regs   map[byte][]byte
	failOn map[byte]error
	txns   [][]byte
	writes [][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		regs:   map[byte][]byte{TCS34725_REGISTER_ID: {TCS34725_ID_VALUE}},
		failOn: map[byte]error{},
	}
}

func (b *fakeBus) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	w = append([]byte(nil), w...)
	b.txns = append(b.txns, w)
	reg := w[0] &^ TCS34725_COMMAND_BIT
	if err, ok := b.failOn[reg]; ok {
		return err
	}
	if len(r) == 0 {
		b.writes = append(b.writes, w)
		if len(w) == 2 {
			b.regs[reg] = []byte{w[1]}
		}
		return nil
	}
	copy(r, b.regs[reg])
	return nil
}

func (b *fakeBus) set(reg byte, v ...byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs[reg] = v
}

func (b *fakeBus) fail(reg byte, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOn[reg] = err
}

func (b *fakeBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txns = nil
	b.writes = nil
}

func (b *fakeBus) written() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.writes...)
}

func (b *fakeBus) transactions() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.txns...)
}

func (b *fakeBus) reg(reg byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[reg][0]
}

type fakePin struct {
	mu    sync.Mutex
	pull  gpio.Pull
	edge  gpio.Edge
	inErr error
	edges chan struct{}
}

func newFakePin() *fakePin {
	return &fakePin{edges: make(chan struct{}, 4)}
}

func (p *fakePin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inErr != nil {
		return p.inErr
	}
	p.pull, p.edge = pull, edge
	return nil
}

func (p *fakePin) WaitForEdge(timeout time.Duration) bool {
	select {
	case <-p.edges:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (p *fakePin) config() (gpio.Pull, gpio.Edge) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull, p.edge
}

type fakeLED struct {
	levels []gpio.Level
}

func (f *fakeLED) Out(l gpio.Level) error {
	f.levels = append(f.levels, l)
	return nil
}

// newTestSensor initializes a sensor on bus and clears the transaction log.
func newTestSensor(t *testing.T, bus *fakeBus, opts *Opts) *TCS34725 {
	t.Helper()
	tcs, err := New(bus, opts)
	require.NoError(t, err)
	require.NotNil(t, tcs)
	t.Cleanup(func() { tcs.Close() })
	bus.reset()
	return tcs
}
