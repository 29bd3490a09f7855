package mceliece

// Arithmetic in GF(2^12) = GF(2)[z]/(z^12 + z^3 + 1), and polynomials over it.

const (
	gfBits  = 12
	gfSize  = 1 << gfBits
	gfOrder = gfSize - 1
	gfPoly  = 0x1009
)

type gf uint16

var (
	gfExp [2 * gfSize]gf
	gfLog [gfSize]int
)

func init() {
	g := findGenerator()
	x := gf(1)
	for i := 0; i < gfOrder; i++ {
		gfExp[i] = x
		gfLog[x] = i
		x = gfMulSlow(x, g)
	}
	for i := gfOrder; i < len(gfExp); i++ {
		gfExp[i] = gfExp[i-gfOrder]
	}
}

// gfMulSlow is carry-less multiplication followed by reduction. It is only
// used to build the log tables.
func gfMulSlow(a, b gf) gf {
	var r uint32
	for i := 0; i < gfBits; i++ {
		if (b>>i)&1 == 1 {
			r ^= uint32(a) << i
		}
	}
	for i := 2*gfBits - 2; i >= gfBits; i-- {
		if (r>>i)&1 == 1 {
			r ^= gfPoly << (i - gfBits)
		}
	}
	return gf(r)
}

// findGenerator returns the smallest element of multiplicative order 2^12-1.
func findGenerator() gf {
	for c := gf(2); c < gfSize; c++ {
		x, order := c, 1
		for x != 1 {
			x = gfMulSlow(x, c)
			order++
		}
		if order == gfOrder {
			return c
		}
	}
	panic("mceliece: no generator for GF(2^12)")
}

func gfMul(a, b gf) gf {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[gfLog[a]+gfLog[b]]
}

// gfInv returns a^-1; a must be non-zero.
func gfInv(a gf) gf {
	return gfExp[gfOrder-gfLog[a]]
}

// poly is a polynomial over GF(2^12); poly[i] is the coefficient of x^i.
type poly []gf

func (p poly) degree() int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0 {
			return i
		}
	}
	return -1
}

func (p poly) trim() poly {
	return p[:p.degree()+1]
}

// eval evaluates p at a with Horner's rule.
func (p poly) eval(a gf) gf {
	var r gf
	for i := len(p) - 1; i >= 0; i-- {
		r = gfMul(r, a) ^ p[i]
	}
	return r
}

// mod returns p mod m; m must be monic.
func (p poly) mod(m poly) poly {
	r := append(poly(nil), p...)
	dm := m.degree()
	for d := r.degree(); d >= dm; d = r.degree() {
		c := r[d]
		shift := d - dm
		for i := 0; i <= dm; i++ {
			r[shift+i] ^= gfMul(c, m[i])
		}
	}
	return r.trim()
}

// sqrMod returns p^2 mod m. Squaring is linear in characteristic 2.
func (p poly) sqrMod(m poly) poly {
	sq := make(poly, 2*len(p))
	for i, c := range p {
		sq[2*i] = gfMul(c, c)
	}
	return sq.mod(m)
}

// gcd returns a monic greatest common divisor of a and b.
func gcd(a, b poly) poly {
	a, b = append(poly(nil), a.trim()...), b.trim()
	for b.degree() >= 0 {
		inv := gfInv(b[b.degree()])
		mb := make(poly, len(b))
		for i, c := range b {
			mb[i] = gfMul(c, inv)
		}
		a, b = mb, a.mod(mb)
	}
	if d := a.degree(); d >= 0 {
		inv := gfInv(a[d])
		for i := range a {
			a[i] = gfMul(a[i], inv)
		}
	}
	return a
}

// irreducible reports whether the monic polynomial g is irreducible over
// GF(2^12), using Ben-Or's test: g of degree t is irreducible iff
// gcd(g, x^(q^i) - x) = 1 for every i <= t/2.
func irreducible(g poly) bool {
	t := g.degree()
	if t < 1 || g[0] == 0 {
		return false
	}
	h := poly{0, 1}.mod(g)
	for i := 1; i <= t/2; i++ {
		for j := 0; j < gfBits; j++ {
			h = h.sqrMod(g)
		}
		diff := make(poly, t+1)
		copy(diff, h)
		diff[1] ^= 1
		if gcd(g, diff).degree() != 0 {
			return false
		}
	}
	return true
}

// berlekampMassey returns the shortest connection polynomial C with C[0] = 1
// that generates the sequence s.
func berlekampMassey(s []gf) poly {
	n := len(s)
	c := make(poly, n+1)
	b := make(poly, n+1)
	c[0], b[0] = 1, 1
	l, m := 0, 1
	bCoef := gf(1)
	for i := 0; i < n; i++ {
		d := s[i]
		for j := 1; j <= l; j++ {
			d ^= gfMul(c[j], s[i-j])
		}
		if d == 0 {
			m++
			continue
		}
		coef := gfMul(d, gfInv(bCoef))
		if 2*l <= i {
			prev := append(poly(nil), c...)
			for j := 0; j+m <= n; j++ {
				c[j+m] ^= gfMul(coef, b[j])
			}
			l = i + 1 - l
			b = prev
			bCoef = d
			m = 1
		} else {
			for j := 0; j+m <= n; j++ {
				c[j+m] ^= gfMul(coef, b[j])
			}
			m++
		}
	}
	return c[:l+1]
}
