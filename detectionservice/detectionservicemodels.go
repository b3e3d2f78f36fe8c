package detectionservice

// Region is an axis aligned rectangle in snapshot pixel coordinates.
// Objects found strictly inside a camera's ignore regions never trigger it.
type Region struct {
	XMin int `json:"x_min" yaml:"x_min"`
	YMin int `json:"y_min" yaml:"y_min"`
	XMax int `json:"x_max" yaml:"x_max"`
	YMax int `json:"y_max" yaml:"y_max"`
}

// Prediction is a single object reported by the detection backend.
// Confidence is normally in [0,1]; backends reporting percent are tolerated.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	XMin       int     `json:"x_min"`
	YMin       int     `json:"y_min"`
	XMax       int     `json:"x_max"`
	YMax       int     `json:"y_max"`
}

// Box returns the prediction's bounding box as a Region.
func (p Prediction) Box() Region {
	return Region{XMin: p.XMin, YMin: p.YMin, XMax: p.XMax, YMax: p.YMax}
}

// Width of the bounding box in pixels.
func (p Prediction) Width() int {
	return p.XMax - p.XMin
}

// Height of the bounding box in pixels.
func (p Prediction) Height() int {
	return p.YMax - p.YMin
}

// Verdict is the classifier decision for one snapshot. Findings holds one
// line per prediction in detector order, matched or not.
type Verdict struct {
	Triggered  bool
	Match      *Prediction
	MatchIndex int
	Findings   []string
}

// detectResponse is the DeepStack /v1/vision/detection reply.
type detectResponse struct {
	Success     bool         `json:"success"`
	Predictions []Prediction `json:"predictions"`
	Error       string       `json:"error"`
	Duration    int          `json:"duration"`
}
