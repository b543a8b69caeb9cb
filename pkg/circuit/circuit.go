// Package circuit assembles elements into a netlist graph and derives the
// aggregate matrices the model compiler consumes: the block-diagonal stacks
// of the per-element constitutive and output matrices, and the topology
// matrices Tv (loops) and Ti (cuts) computed from the node incidence matrix
// by exact row reduction.
package circuit

import (
	"fmt"

	"statespice/pkg/device"
	"statespice/pkg/ratmat"
)

// PinRef names one pin of one named element.
type PinRef struct {
	Element string
	Pin     string
}

// Circuit is an ordered bag of elements plus net connections. It is built
// once and then frozen by the first matrix query.
type Circuit struct {
	names []string
	elems []*device.Element
	index map[string]int

	netOrder []string
	nets     map[string][]PinRef
}

// New returns an empty circuit.
func New() *Circuit {
	return &Circuit{
		index: make(map[string]int),
		nets:  make(map[string][]PinRef),
	}
}

// Add registers an element under a unique name.
func (c *Circuit) Add(name string, el *device.Element) error {
	if _, dup := c.index[name]; dup {
		return fmt.Errorf("circuit: duplicate element name %q", name)
	}
	c.index[name] = len(c.elems)
	c.names = append(c.names, name)
	c.elems = append(c.elems, el)
	return nil
}

// Connect attaches element pins to the named net. A net may be extended by
// repeated calls.
func (c *Circuit) Connect(net string, pins ...PinRef) error {
	for _, p := range pins {
		idx, ok := c.index[p.Element]
		if !ok {
			return fmt.Errorf("circuit: unknown element %q on net %q", p.Element, net)
		}
		if _, ok := c.elems[idx].FindPin(p.Pin); !ok {
			return fmt.Errorf("circuit: element %q has no pin %q", p.Element, p.Pin)
		}
	}
	if _, seen := c.nets[net]; !seen {
		c.netOrder = append(c.netOrder, net)
	}
	c.nets[net] = append(c.nets[net], pins...)
	return nil
}

// Elements returns the elements in insertion order.
func (c *Circuit) Elements() []*device.Element { return c.elems }

// Names returns the element names in insertion order.
func (c *Circuit) Names() []string { return c.names }

// Element returns a named element.
func (c *Circuit) Element(name string) (*device.Element, bool) {
	idx, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.elems[idx], true
}

// Nets returns the net names in first-connection order.
func (c *Circuit) Nets() []string { return c.netOrder }

// NetPins returns the pins attached to a net.
func (c *Circuit) NetPins(net string) []PinRef { return c.nets[net] }

// Dimension totals over all elements.

func (c *Circuit) NL() int { return c.sum((*device.Element).NL) }
func (c *Circuit) NB() int { return c.sum((*device.Element).NB) }
func (c *Circuit) NX() int { return c.sum((*device.Element).NX) }
func (c *Circuit) NQ() int { return c.sum((*device.Element).NQ) }
func (c *Circuit) NU() int { return c.sum((*device.Element).NU) }
func (c *Circuit) NY() int { return c.sum((*device.Element).NY) }
func (c *Circuit) NN() int { return c.sum((*device.Element).NN) }

func (c *Circuit) sum(f func(*device.Element) int) int {
	n := 0
	for _, e := range c.elems {
		n += f(e)
	}
	return n
}

// BranchOffset returns the global branch index of element i's first branch.
func (c *Circuit) BranchOffset(i int) int {
	off := 0
	for k := 0; k < i; k++ {
		off += c.elems[k].NB()
	}
	return off
}

// Aggregate constitutive matrices: per-element rows stacked block-diagonally
// against each element's own columns.

func (c *Circuit) Mv() *ratmat.Matrix { return c.blockDiag(func(e *device.Element) *ratmat.Matrix { return e.Mv }) }
func (c *Circuit) Mi() *ratmat.Matrix { return c.blockDiag(func(e *device.Element) *ratmat.Matrix { return e.Mi }) }
func (c *Circuit) Mx() *ratmat.Matrix { return c.blockDiag(func(e *device.Element) *ratmat.Matrix { return e.Mx }) }
func (c *Circuit) Mxd() *ratmat.Matrix {
	return c.blockDiag(func(e *device.Element) *ratmat.Matrix { return e.Mxd })
}
func (c *Circuit) Mq() *ratmat.Matrix { return c.blockDiag(func(e *device.Element) *ratmat.Matrix { return e.Mq }) }
func (c *Circuit) Mu() *ratmat.Matrix { return c.blockDiag(func(e *device.Element) *ratmat.Matrix { return e.Mu }) }

func (c *Circuit) U0() *ratmat.Matrix {
	ms := make([]*ratmat.Matrix, 0, len(c.elems)+1)
	ms = append(ms, ratmat.New(0, 1))
	for _, e := range c.elems {
		ms = append(ms, e.U0)
	}
	return ratmat.Vcat(ms...)
}

func (c *Circuit) Pv() *ratmat.Matrix { return c.blockDiag(func(e *device.Element) *ratmat.Matrix { return e.Pv }) }
func (c *Circuit) Pi() *ratmat.Matrix { return c.blockDiag(func(e *device.Element) *ratmat.Matrix { return e.Pi }) }
func (c *Circuit) Px() *ratmat.Matrix { return c.blockDiag(func(e *device.Element) *ratmat.Matrix { return e.Px }) }
func (c *Circuit) Pxd() *ratmat.Matrix {
	return c.blockDiag(func(e *device.Element) *ratmat.Matrix { return e.Pxd })
}
func (c *Circuit) Pq() *ratmat.Matrix { return c.blockDiag(func(e *device.Element) *ratmat.Matrix { return e.Pq }) }

func (c *Circuit) blockDiag(pick func(*device.Element) *ratmat.Matrix) *ratmat.Matrix {
	ms := make([]*ratmat.Matrix, len(c.elems))
	for i, e := range c.elems {
		ms[i] = pick(e)
	}
	return ratmat.BlockDiag(ms...)
}

// Incidence builds the net-by-branch incidence matrix with one +1 and one -1
// per branch column; a branch with both terminals on the same net keeps a
// zero column. It errors if any branch terminal is unconnected or connected
// to more than one net.
func (c *Circuit) Incidence() (*ratmat.Matrix, error) {
	nb := c.NB()
	type hookup struct {
		net  int
		seen bool
	}
	pos := make([]hookup, nb)
	neg := make([]hookup, nb)

	for netIdx, net := range c.netOrder {
		for _, p := range c.nets[net] {
			idx := c.index[p.Element]
			el := c.elems[idx]
			pin, _ := el.FindPin(p.Pin)
			off := c.BranchOffset(idx)
			for _, term := range pin.Terms {
				side := &pos[off+term.Branch]
				if term.Polarity < 0 {
					side = &neg[off+term.Branch]
				}
				if side.seen && side.net != netIdx {
					return nil, fmt.Errorf("circuit: terminal of %q pin %q connected to both %q and %q",
						p.Element, p.Pin, c.netOrder[side.net], net)
				}
				side.net = netIdx
				side.seen = true
			}
		}
	}

	inc := ratmat.New(len(c.netOrder), nb)
	for b := 0; b < nb; b++ {
		if !pos[b].seen || !neg[b].seen {
			return nil, fmt.Errorf("circuit: branch %d (%s) has an unconnected terminal", b, c.branchOwner(b))
		}
		if pos[b].net == neg[b].net {
			// both terminals on one net: a shorted branch, column stays zero
			continue
		}
		inc.SetInt(pos[b].net, b, 1)
		inc.SetInt(neg[b].net, b, -1)
	}
	return inc, nil
}

func (c *Circuit) branchOwner(b int) string {
	for i := range c.elems {
		off := c.BranchOffset(i)
		if b >= off && b < off+c.elems[i].NB() {
			return c.names[i]
		}
	}
	return "?"
}

// Topology derives Tv and Ti from the incidence matrix, with Tv·v = 0 over
// all loop voltages, Ti·i = 0 over all cut currents and Tv·Tiᵀ = 0.
func (c *Circuit) Topology() (tv, ti *ratmat.Matrix, err error) {
	inc, err := c.Incidence()
	if err != nil {
		return nil, nil, err
	}
	return topomat(inc)
}

// topomat row-reduces the incidence matrix. Ti is the nonzero part of the
// reduced form; Tv is the kernel basis built from the free columns.
func topomat(inc *ratmat.Matrix) (tv, ti *ratmat.Matrix, err error) {
	_, nb := inc.Dims()
	r, pivots := ratmat.RREF(inc)
	rank := len(pivots)
	ti = r.SliceRows(0, rank)

	isPivot := make(map[int]int, rank) // column -> pivot row
	for row, col := range pivots {
		isPivot[col] = row
	}
	free := make([]int, 0, nb-rank)
	for j := 0; j < nb; j++ {
		if _, ok := isPivot[j]; !ok {
			free = append(free, j)
		}
	}

	tv = ratmat.New(len(free), nb)
	for k, f := range free {
		tv.SetInt(k, f, 1)
		for col, row := range isPivot {
			v := ti.At(row, f)
			if v.Sign() != 0 {
				tv.Set(k, col, negRat(v))
			}
		}
	}
	return tv, ti, nil
}
