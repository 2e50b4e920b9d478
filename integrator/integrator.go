// Package integrator provides explicit Euler and Runge-Kutta stepping for
// point sets whose motion is given by a displacement functor.
package integrator

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mode selects the integration order.
type Mode int

const (
	Euler Mode = iota // first order
	RK2               // two-stage midpoint
	RK4               // classic four-stage
)

// ErrInvalidMode is returned for an unrecognized integration order.
var ErrInvalidMode = errors.New("invalid integration mode")

// EvalFunc writes into u the displacement of every point in x over one step.
// Displacements are velocities already scaled by the time step.
type EvalFunc func(x, u []r3.Vec)

// String returns the config name of the mode.
func (m Mode) String() string {
	switch m {
	case Euler:
		return "euler"
	case RK2:
		return "rk2"
	case RK4:
		return "rk4"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the supported orders.
func (m Mode) Valid() bool {
	return m == Euler || m == RK2 || m == RK4
}

// ParseMode converts a config name ("euler", "rk2", "rk4") to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "euler", "rk1":
		return Euler, nil
	case "rk2", "midpoint":
		return RK2, nil
	case "rk4":
		return RK4, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func checkMode(mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	return nil
}

// Integrate advances every point of x in place by one step.
// x is left untouched when mode is invalid.
func Integrate(x []r3.Vec, mode Mode, eval EvalFunc) error {
	if err := checkMode(mode); err != nil {
		return err
	}
	n := len(x)
	if n == 0 {
		return nil
	}

	switch mode {
	case Euler:
		u := make([]r3.Vec, n)
		eval(x, u)
		for i := range x {
			x[i] = r3.Add(x[i], u[i])
		}

	case RK2:
		buf := make([]r3.Vec, 3*n)
		k1, k2, tmp := buf[:n], buf[n:2*n], buf[2*n:]
		eval(x, k1)
		for i := range x {
			tmp[i] = r3.Add(x[i], r3.Scale(0.5, k1[i]))
		}
		eval(tmp, k2)
		for i := range x {
			x[i] = r3.Add(x[i], k2[i])
		}

	case RK4:
		buf := make([]r3.Vec, 5*n)
		k1, k2, k3, k4, tmp := buf[:n], buf[n:2*n], buf[2*n:3*n], buf[3*n:4*n], buf[4*n:]
		eval(x, k1)
		for i := range x {
			tmp[i] = r3.Add(x[i], r3.Scale(0.5, k1[i]))
		}
		eval(tmp, k2)
		for i := range x {
			tmp[i] = r3.Add(x[i], r3.Scale(0.5, k2[i]))
		}
		eval(tmp, k3)
		for i := range x {
			tmp[i] = r3.Add(x[i], k3[i])
		}
		eval(tmp, k4)
		for i := range x {
			sum := r3.Add(r3.Add(k1[i], r3.Scale(2, k2[i])), r3.Add(r3.Scale(2, k3[i]), k4[i]))
			x[i] = r3.Add(x[i], r3.Scale(1.0/6.0, sum))
		}
	}
	return nil
}

// Step advances a single point. disp returns the displacement at a position.
func Step(p r3.Vec, mode Mode, disp func(r3.Vec) r3.Vec) (r3.Vec, error) {
	if err := checkMode(mode); err != nil {
		return p, err
	}
	switch mode {
	case Euler:
		return r3.Add(p, disp(p)), nil
	case RK2:
		k1 := disp(p)
		k2 := disp(r3.Add(p, r3.Scale(0.5, k1)))
		return r3.Add(p, k2), nil
	default:
		k1 := disp(p)
		k2 := disp(r3.Add(p, r3.Scale(0.5, k1)))
		k3 := disp(r3.Add(p, r3.Scale(0.5, k2)))
		k4 := disp(r3.Add(p, k3))
		sum := r3.Add(r3.Add(k1, r3.Scale(2, k2)), r3.Add(r3.Scale(2, k3), k4))
		return r3.Add(p, r3.Scale(1.0/6.0, sum)), nil
	}
}
