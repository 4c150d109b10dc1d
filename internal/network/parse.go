package network

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// MeasurementRow is one row of the sparse measurement table: a node, a
// study, and the observed values.
type MeasurementRow struct {
	NodeID  string  `json:"node"`
	StudyID string  `json:"study"`
	Fold    float64 `json:"fold"`
	FoldLog float64 `json:"fold_log"`
	PValue  float64 `json:"p_value"`
}

// ReadNodes decodes a JSON node list.
func ReadNodes(r io.Reader) ([]Node, error) {
	var nodes []Node
	if err := json.NewDecoder(r).Decode(&nodes); err != nil {
		return nil, fmt.Errorf("decoding node list: %w", err)
	}
	return nodes, nil
}

// ReadEdges decodes a JSON edge list.
func ReadEdges(r io.Reader) ([]Edge, error) {
	var edges []Edge
	if err := json.NewDecoder(r).Decode(&edges); err != nil {
		return nil, fmt.Errorf("decoding edge list: %w", err)
	}
	return edges, nil
}

// ReadMeasurements decodes the measurement table and validates row values.
func ReadMeasurements(r io.Reader) ([]MeasurementRow, error) {
	var rows []MeasurementRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding measurement table: %w", err)
	}
	for i, row := range rows {
		if row.NodeID == "" || row.StudyID == "" {
			return nil, fmt.Errorf("measurement row %d: missing node or study id", i)
		}
		if row.PValue < 0 || row.PValue > 1 {
			return nil, fmt.Errorf("measurement row %d (%s, %s): p-value %v outside [0, 1]",
				i, row.NodeID, row.StudyID, row.PValue)
		}
	}
	return rows, nil
}

// AttachMeasurements merges measurement rows into the node list, keyed by
// node id and study id. Rows referencing unknown nodes are returned as an
// error listing the first offending id; later rows for the same
// (node, study) pair overwrite earlier ones.
func AttachMeasurements(nodes []Node, rows []MeasurementRow) ([]Node, error) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}
	for _, row := range rows {
		i, ok := index[row.NodeID]
		if !ok {
			return nil, fmt.Errorf("measurement for unknown node %q (study %s)", row.NodeID, row.StudyID)
		}
		if nodes[i].Measurements == nil {
			nodes[i].Measurements = make(map[string]Measurement)
		}
		nodes[i].Measurements[row.StudyID] = Measurement{
			Fold:    row.Fold,
			FoldLog: row.FoldLog,
			PValue:  row.PValue,
		}
	}
	return nodes, nil
}

// LoadFiles builds a network from node, edge, and optional measurement
// files. measurementsPath may be empty.
func LoadFiles(nodesPath, edgesPath, measurementsPath string) (*Network, error) {
	nodes, err := readFile(nodesPath, ReadNodes)
	if err != nil {
		return nil, err
	}
	edges, err := readFile(edgesPath, ReadEdges)
	if err != nil {
		return nil, err
	}
	if measurementsPath != "" {
		rows, err := readFile(measurementsPath, ReadMeasurements)
		if err != nil {
			return nil, err
		}
		nodes, err = AttachMeasurements(nodes, rows)
		if err != nil {
			return nil, err
		}
	}
	return New(nodes, edges)
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	v, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
