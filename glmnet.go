package matbridge

import (
	"fmt"
)

// glmnetFamilies is the set of model families the glmnet toolbox accepts.
var glmnetFamilies = []string{"gaussian", "binomial", "poisson", "multinomial", "cox", "mgaussian"}

// GlmnetOptions holds the optional parameters of a glmnet fit. Zero-valued
// fields are omitted from the call, leaving the toolbox defaults in effect.
type GlmnetOptions struct {
	// Alpha is the elastic-net mixing parameter (1 = lasso, 0 = ridge).
	Alpha *float64

	// NLambda is the number of lambda values on the regularization path.
	NLambda int

	// Lambda supplies an explicit lambda sequence instead of a computed one.
	Lambda []float64

	// Weights are per-observation weights.
	Weights []float64

	// Exclude lists 1-based predictor indices to force out of the model.
	Exclude []int

	// Standardize controls predictor standardization before fitting.
	Standardize *bool
}

// engineValue converts the options into the struct argument glmnet expects.
// With no options set, the engine's 0x0 double matrix is passed instead:
// glmnet rejects an empty struct but treats [] as "all defaults".
func (o *GlmnetOptions) engineValue() interface{} {
	if o == nil {
		return Empty()
	}
	fields := map[string]interface{}{}
	if o.Alpha != nil {
		fields["alpha"] = *o.Alpha
	}
	if o.NLambda > 0 {
		fields["nlambda"] = float64(o.NLambda)
	}
	if len(o.Lambda) > 0 {
		fields["lambda"] = o.Lambda
	}
	if len(o.Weights) > 0 {
		fields["weights"] = o.Weights
	}
	if len(o.Exclude) > 0 {
		fields["exclude"] = o.Exclude
	}
	if o.Standardize != nil {
		fields["standardize"] = *o.Standardize
	}
	if len(fields) == 0 {
		return Empty()
	}
	return fields
}

// GlmnetFit is the decoded result of a glmnet fit.
type GlmnetFit struct {
	// A0 holds the intercept per lambda value.
	A0 []float64

	// Beta holds the coefficients, one column per lambda value.
	Beta Matrix

	// Lambda is the regularization path.
	Lambda []float64

	// DF is the number of nonzero coefficients per lambda value.
	DF []float64

	// Dim is [predictors, lambda values].
	Dim [2]int

	// NullDev is the null deviance.
	NullDev float64

	// Npasses is the total number of coordinate-descent passes.
	Npasses int

	// Jerr is the toolbox error flag (0 means no error).
	Jerr int

	// Class is the fit class reported by the toolbox (e.g., "elnet", "lognet").
	Class string
}

// Glmnet fits a regularized generalized linear model with the glmnet
// toolbox using the package-level lazy engine. The engine starts on the
// first call and is reused afterwards.
//
// x is the n x p predictor matrix and y the length-n response. family must
// be one of: gaussian, binomial, poisson, multinomial, cox, mgaussian.
// For the binomial family the response is sent as a logical vector and must
// contain only 0 and 1; quantitative families send it as doubles.
//
// The glmnet toolbox directory must be on the engine's search path; launch
// the session with SessionConfig.Dir pointing at the toolbox (or use Pushd
// around DefaultEngine's first call).
func Glmnet(x Matrix, y []float64, family string, opts *GlmnetOptions) (*GlmnetFit, error) {
	return GlmnetOn(DefaultEngine(), x, y, family, opts)
}

// GlmnetOn is Glmnet against an explicit engine or session.
func GlmnetOn(e Fevaler, x Matrix, y []float64, family string, opts *GlmnetOptions) (*GlmnetFit, error) {
	if err := oneOf("family", family, glmnetFamilies); err != nil {
		return nil, err
	}
	if x.Rows != len(y) {
		return nil, fmt.Errorf("response length %d does not match %d predictor rows", len(y), x.Rows)
	}

	response, err := glmnetResponse(y, family)
	if err != nil {
		return nil, err
	}

	results, err := e.Feval("glmnet", 1, x, response, family, opts.engineValue())
	if err != nil {
		return nil, err
	}
	if len(results) < 1 {
		return nil, fmt.Errorf("glmnet returned no fit")
	}

	fields, ok := results[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("glmnet returned %T, expected a fit struct", results[0])
	}
	return decodeGlmnetFit(fields), nil
}

// glmnetResponse converts the response vector for the given family: binary
// models take a logical vector, quantitative models take doubles.
func glmnetResponse(y []float64, family string) (interface{}, error) {
	if family != "binomial" {
		return y, nil
	}
	logical := make([]bool, len(y))
	for i, v := range y {
		switch v {
		case 0:
			logical[i] = false
		case 1:
			logical[i] = true
		default:
			return nil, fmt.Errorf("binomial family requires a 0/1 response, found %v at index %d", v, i)
		}
	}
	return logical, nil
}

func decodeGlmnetFit(fields map[string]interface{}) *GlmnetFit {
	fit := &GlmnetFit{}
	fit.A0 = fitFloats(fields["a0"])
	fit.Lambda = fitFloats(fields["lambda"])
	fit.DF = fitFloats(fields["df"])
	fit.NullDev = fitFloat(fields["nulldev"])
	fit.Npasses = int(fitFloat(fields["npasses"]))
	fit.Jerr = int(fitFloat(fields["jerr"]))
	if s, ok := fields["class"].(string); ok {
		fit.Class = s
	}
	if dim := fitFloats(fields["dim"]); len(dim) >= 2 {
		fit.Dim = [2]int{int(dim[0]), int(dim[1])}
	}
	switch beta := fields["beta"].(type) {
	case Matrix:
		fit.Beta = beta
	case []float64:
		// Single-lambda fits come back as a vector.
		fit.Beta = ColumnVector(beta)
	}
	return fit
}

// fitFloats normalizes a decoded fit field into a float slice.
func fitFloats(v interface{}) []float64 {
	switch val := v.(type) {
	case []float64:
		return val
	case float64:
		return []float64{val}
	case Matrix:
		return val.Data
	default:
		return nil
	}
}

func fitFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case []float64:
		if len(val) > 0 {
			return val[0]
		}
	}
	return 0
}
