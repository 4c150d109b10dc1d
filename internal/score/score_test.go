package score

import (
	"math"
	"reflect"
	"testing"

	"github.com/j-berg/metabonet/internal/network"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6
}

func TestStudyZ(t *testing.T) {
	z95 := stdNormal.Quantile(0.95) // ~1.6449

	tests := []struct {
		name string
		m    network.Measurement
		want float64
	}{
		{"significant_up", network.Measurement{Fold: 2, FoldLog: 1, PValue: 0.05}, z95},
		{"significant_down", network.Measurement{Fold: 0.5, FoldLog: -1, PValue: 0.05}, -z95},
		{"uninformative", network.Measurement{Fold: 2, FoldLog: 1, PValue: 0.5}, 0},
		{"high_p_clamped_to_zero", network.Measurement{Fold: 2, FoldLog: 1, PValue: 0.9}, 0},
		{"direction_from_fold", network.Measurement{Fold: 0.5, FoldLog: 0, PValue: 0.05}, -z95},
		{"no_direction_defaults_up", network.Measurement{PValue: 0.05}, z95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StudyZ(tt.m)
			if !approx(got, tt.want) {
				t.Errorf("StudyZ(%+v) = %v, want %v", tt.m, got, tt.want)
			}
		})
	}
}

func TestStudyZ_ExtremePStaysFinite(t *testing.T) {
	for _, p := range []float64{0, 1e-300, 1} {
		z := StudyZ(network.Measurement{FoldLog: 1, PValue: p})
		if math.IsInf(z, 0) || math.IsNaN(z) {
			t.Errorf("StudyZ with p=%v not finite: %v", p, z)
		}
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name    string
		zs      []float64
		weights []float64
		want    float64
	}{
		{"empty", nil, nil, 0},
		{"single", []float64{2}, nil, 2},
		{"equal_weights", []float64{2, 2}, nil, 4 / math.Sqrt(2)},
		{"opposing", []float64{2, -2}, nil, 0},
		{"weighted", []float64{3, 1}, []float64{2, 1}, 7 / math.Sqrt(5)},
		{"zero_weights", []float64{3, 1}, []float64{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.zs, tt.weights)
			if !approx(got, tt.want) {
				t.Errorf("Combine(%v, %v) = %v, want %v", tt.zs, tt.weights, got, tt.want)
			}
		})
	}
}

func TestPFromZ(t *testing.T) {
	z95 := stdNormal.Quantile(0.95)
	if p := PFromZ(z95); !approx(p, 0.05) {
		t.Errorf("PFromZ(%v) = %v, want 0.05", z95, p)
	}
	// p is taken on the magnitude
	if p, q := PFromZ(2), PFromZ(-2); p != q {
		t.Errorf("PFromZ not symmetric: %v vs %v", p, q)
	}
	if p := PFromZ(0); !approx(p, 0.5) {
		t.Errorf("PFromZ(0) = %v, want 0.5", p)
	}
}

func scoredNetwork(t *testing.T) *network.Network {
	t.Helper()
	nodes := []network.Node{
		{ID: "m1", Type: network.Metabolite, Measurements: map[string]network.Measurement{
			"s1": {Fold: 2, FoldLog: 1, PValue: 0.05},
			"s2": {Fold: 4, FoldLog: 2, PValue: 0.01},
		}},
		{ID: "m2", Type: network.Metabolite, Measurements: map[string]network.Measurement{
			"s1": {Fold: 0.5, FoldLog: -1, PValue: 0.05},
		}},
		{ID: "m3", Type: network.Metabolite},
		{ID: "r1", Type: network.Reaction},
	}
	edges := []network.Edge{
		{Source: "m1", Target: "r1"},
		{Source: "m2", Target: "r1"},
		{Source: "m3", Target: "r1"},
	}
	net, err := network.New(nodes, edges)
	if err != nil {
		t.Fatal(err)
	}
	return net
}

func TestCompute(t *testing.T) {
	net := scoredNetwork(t)
	table := Compute(net, nil)

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	if got, want := table.Studies(), []string{"s1", "s2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Studies() = %v, want %v", got, want)
	}

	c1, ok := table.Lookup("m1")
	if !ok {
		t.Fatal("m1 should be scored")
	}
	wantZ := Combine([]float64{
		StudyZ(network.Measurement{Fold: 2, FoldLog: 1, PValue: 0.05}),
		StudyZ(network.Measurement{Fold: 4, FoldLog: 2, PValue: 0.01}),
	}, nil)
	if !approx(c1.Z, wantZ) {
		t.Errorf("m1 Z = %v, want %v", c1.Z, wantZ)
	}
	if !approx(c1.P, PFromZ(wantZ)) {
		t.Errorf("m1 P = %v, want %v", c1.P, PFromZ(wantZ))
	}
	if !approx(c1.FoldLog, 1.5) {
		t.Errorf("m1 FoldLog = %v, want 1.5 (unweighted mean)", c1.FoldLog)
	}
	if c1.Studies != 2 {
		t.Errorf("m1 Studies = %d, want 2", c1.Studies)
	}

	c2, _ := table.Lookup("m2")
	if c2.Z >= 0 {
		t.Errorf("depleted m2 should carry negative Z, got %v", c2.Z)
	}

	if _, ok := table.Lookup("m3"); ok {
		t.Error("unmeasured m3 must not have a composite score")
	}
	if _, ok := table.Lookup("ghost"); ok {
		t.Error("unknown id must not have a composite score")
	}
}

func TestCompute_StudyWeights(t *testing.T) {
	net := scoredNetwork(t)
	table := Compute(net, map[string]float64{"s1": 3})

	c, _ := table.Lookup("m1")
	// s1 weighted 3, s2 defaults to 1: (3*1 + 1*2) / 4
	if !approx(c.FoldLog, 1.25) {
		t.Errorf("weighted FoldLog = %v, want 1.25", c.FoldLog)
	}
	z1 := StudyZ(network.Measurement{Fold: 2, FoldLog: 1, PValue: 0.05})
	z2 := StudyZ(network.Measurement{Fold: 4, FoldLog: 2, PValue: 0.01})
	wantZ := Combine([]float64{z1, z2}, []float64{3, 1})
	if !approx(c.Z, wantZ) {
		t.Errorf("weighted Z = %v, want %v", c.Z, wantZ)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	net := scoredNetwork(t)
	a := Compute(net, nil)
	b := Compute(net, nil)
	for _, id := range net.Nodes() {
		ca, oka := a.Lookup(id)
		cb, okb := b.Lookup(id)
		if oka != okb || ca != cb {
			t.Errorf("node %s: %v/%v vs %v/%v", id, ca, oka, cb, okb)
		}
	}
}
