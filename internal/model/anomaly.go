package model

// Anomaly is the legacy bridge record consumed by the surrounding
// security-assessment pipeline. The mapping from SourceComparison is lossy by
// design: this is a one-way adapter for an older anomaly-based consumer, not
// part of the core data model.
type Anomaly struct {
	Name           string   `json:"name"`            // Category name (probe display name)
	Path           string   `json:"path"`            // Synthetic identifier: "contradiction:<probe-id>"
	Technique      string   `json:"technique"`       // Technique label
	Description    string   `json:"description"`     // Free text embedding both source values
	Severity       string   `json:"severity"`        // Always AnomalySeverity
	Classification string   `json:"classification"`  // Always AnomalyClassification
	ProbeID        string   `json:"probe_id"`        // Emitting probe
	SourcePair     string   `json:"source_pair"`     // Which two source types were compared
	Evidence       []string `json:"evidence"`        // Source/value pairs and the match flag, stringified
}

const (
	// AnomalySeverity is fixed: a cross-source contradiction is always
	// treated as high severity by the downstream consumer.
	AnomalySeverity = "high"

	// AnomalyClassification tags contradiction-derived anomalies so the
	// consumer can distinguish them from its native detections.
	AnomalyClassification = "cross_source_contradiction"
)
