// Copyright 2026 depscan authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inventory

// RiskLevel is the qualitative risk label attached to packages and
// reputation records.
type RiskLevel string

// RiskLevel values. RiskNone means the score cleared every threshold and
// no risk level is reported.
const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ReputationFactors holds the four per-signal scores, each in [0, 1].
type ReputationFactors struct {
	Age         float64 `json:"age"`
	Downloads   float64 `json:"downloads"`
	Author      float64 `json:"author"`
	Maintenance float64 `json:"maintenance"`
}

// RiskFactor describes one reason a package's reputation is reduced.
type RiskFactor struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// ReputationRecord summarizes registry-metadata trustworthiness of a package.
type ReputationRecord struct {
	// Score is the weighted overall reputation in [0, 1], higher is better.
	Score       float64           `json:"score"`
	RiskLevel   RiskLevel         `json:"risk_level"`
	Factors     ReputationFactors `json:"factors"`
	RiskFactors []RiskFactor      `json:"risk_factors"`
	Reasoning   string            `json:"reasoning"`
	// Confidence is the fraction of factors that had usable input.
	Confidence float64 `json:"confidence"`
}

// HasRiskFactor reports whether the record carries a risk factor of the
// given type.
func (r *ReputationRecord) HasRiskFactor(factorType string) bool {
	for _, f := range r.RiskFactors {
		if f.Type == factorType {
			return true
		}
	}
	return false
}
