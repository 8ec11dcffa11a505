package tracker

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Measurement is an observed value split into scalar channels
type Measurement []float64

// StateMean is the filter state, the measured channels followed by each of
// their derivatives in increasing order
type StateMean []float64

// StateCov represents the state covariance matrix
type StateCov struct {
	*mat.Dense
}

// StateHMean is the state projected into measurement space
type StateHMean []float64

// StateHCov is the state covariance projected into measurement space
type StateHCov struct {
	*mat.SymDense
}

// KalmanParams holds the noise model of a KalmanFilter
type KalmanParams struct {
	// ProcessNoise is the variance added to every state component on predict
	ProcessNoise float64
	// MeasurementNoise is the variance of every measured channel
	MeasurementNoise float64
	// InitialCovariance is the variance of every state component when a
	// track is initiated
	InitialCovariance float64
	// TimeStep is the interval between two frames
	TimeStep float64
}

// DefaultKalmanParams returns the noise model used when none is given
func DefaultKalmanParams() KalmanParams {
	return KalmanParams{
		ProcessNoise:      1e-5,
		MeasurementNoise:  1e-1,
		InitialCovariance: 1,
		TimeStep:          1,
	}
}

// validate checks the noise model is usable
func (p KalmanParams) validate() error {

	switch {
	case p.ProcessNoise < 0 || math.IsNaN(p.ProcessNoise):
		return errors.Wrapf(ErrInvalidFilterConfiguration, "process noise %v must not be negative", p.ProcessNoise)
	case !(p.MeasurementNoise > 0):
		return errors.Wrapf(ErrInvalidFilterConfiguration, "measurement noise %v must be positive", p.MeasurementNoise)
	case !(p.InitialCovariance > 0):
		return errors.Wrapf(ErrInvalidFilterConfiguration, "initial covariance %v must be positive", p.InitialCovariance)
	case !(p.TimeStep > 0):
		return errors.Wrapf(ErrInvalidFilterConfiguration, "time step %v must be positive", p.TimeStep)
	}

	return nil
}

// KalmanFilter is a linear Kalman filter over ndim independent channels,
// each modelled with order derivatives under a constant highest derivative
// motion model
type KalmanFilter struct {
	ndim      int
	order     int
	params    KalmanParams
	motionMat *mat.Dense
	updateMat *mat.Dense
}

// NewKalmanFilter initializes and returns a new KalmanFilter for ndim
// channels tracking order derivatives of each, so order 1 tracks value and
// velocity
func NewKalmanFilter(ndim, order int, params KalmanParams) (*KalmanFilter, error) {

	if ndim < 1 {
		return nil, errors.Wrapf(ErrInvalidFilterConfiguration, "kalman filter needs at least one channel, got %d", ndim)
	}

	if order < 0 {
		return nil, errors.Wrapf(ErrInvalidFilterConfiguration, "derivative order %d is negative", order)
	}

	if err := params.validate(); err != nil {
		return nil, err
	}

	size := ndim * (order + 1)

	// motionMat advances every derivative block by the Taylor expansion of
	// the higher derivatives over one time step
	motionMat := mat.NewDense(size, size, nil)

	for j := 0; j <= order; j++ {
		for k := j; k <= order; k++ {

			coef := math.Pow(params.TimeStep, float64(k-j)) / factorial(k-j)

			for i := 0; i < ndim; i++ {
				motionMat.Set(j*ndim+i, k*ndim+i, coef)
			}
		}
	}

	// updateMat selects the measured channels from the state
	updateMat := mat.NewDense(ndim, size, nil)

	for i := 0; i < ndim; i++ {
		updateMat.Set(i, i, 1.0)
	}

	return &KalmanFilter{
		ndim:      ndim,
		order:     order,
		params:    params,
		motionMat: motionMat,
		updateMat: updateMat,
	}, nil
}

// Dims returns the number of measured channels and the state size
func (kf *KalmanFilter) Dims() (ndim, size int) {
	return kf.ndim, kf.ndim * (kf.order + 1)
}

// NewState allocates a zeroed state mean and covariance for the filter
func (kf *KalmanFilter) NewState() (StateMean, *StateCov) {
	_, size := kf.Dims()
	return make(StateMean, size), &StateCov{mat.NewDense(size, size, nil)}
}

// Initiate initializes the state mean and covariance so the estimate equals
// the measurement with all derivatives zero
func (kf *KalmanFilter) Initiate(mean StateMean, covariance *StateCov,
	measurement Measurement) {

	_, size := kf.Dims()

	// copy the measurement into the position part of the mean
	copy(mean[:kf.ndim], measurement[:kf.ndim])

	// set the derivative components to 0
	for i := kf.ndim; i < size; i++ {
		mean[i] = 0.0
	}

	covariance.Dense = mat.NewDense(size, size, nil)

	for i := 0; i < size; i++ {
		covariance.Set(i, i, kf.params.InitialCovariance)
	}
}

// Predict predicts the next state mean and covariance
func (kf *KalmanFilter) Predict(mean StateMean, covariance *StateCov) {

	_, size := kf.Dims()

	// predict the next state mean using the motion model
	meanVec := mat.NewVecDense(size, nil)
	meanVec.MulVec(kf.motionMat, mat.NewVecDense(size, mean))

	for i := 0; i < size; i++ {
		mean[i] = meanVec.AtVec(i)
	}

	// predict the next state covariance using the motion model
	tmp := mat.NewDense(size, size, nil)
	tmp.Mul(kf.motionMat, covariance.Dense)

	cov := mat.NewDense(size, size, nil)
	cov.Mul(tmp, kf.motionMat.T())

	for i := 0; i < size; i++ {
		cov.Set(i, i, cov.At(i, i)+kf.params.ProcessNoise)
	}

	covariance.Dense = cov
}

// Update corrects the state mean and covariance with a measurement
func (kf *KalmanFilter) Update(mean StateMean, covariance *StateCov,
	measurement Measurement) error {

	_, size := kf.Dims()

	if len(measurement) != kf.ndim {
		return errors.Errorf("measurement has %d channels, filter expects %d", len(measurement), kf.ndim)
	}

	// project the state mean and covariance to measurement space
	projectedMean, projectedCov := kf.project(mean, covariance)

	// perform Cholesky factorization of the projected covariance matrix
	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// compute the matrix B for Kalman gain calculation
	B := mat.NewDense(size, kf.ndim, nil)
	B.Mul(covariance.Dense, kf.updateMat.T())

	// compute the transposed Kalman gain using the Cholesky factorization
	var kalmanGain mat.Dense
	err := chol.SolveTo(&kalmanGain, B.T())

	if err != nil {
		return errors.Wrap(err, "failed to compute kalman gain")
	}

	// compute the innovation (measurement residual)
	innovation := make([]float64, kf.ndim)

	for i := 0; i < kf.ndim; i++ {
		innovation[i] = measurement[i] - projectedMean[i]
	}

	// update the state mean with the innovation
	tmp := mat.NewVecDense(size, nil)
	tmp.MulVec(kalmanGain.T(), mat.NewVecDense(kf.ndim, innovation))

	for i := 0; i < size; i++ {
		mean[i] += tmp.AtVec(i)
	}

	// update the state covariance
	temp := mat.NewDense(size, kf.ndim, nil)
	temp.Mul(kalmanGain.T(), projectedCov)

	temp2 := mat.NewDense(size, size, nil)
	temp2.Mul(temp, &kalmanGain)

	newCov := mat.NewDense(size, size, nil)
	newCov.Sub(covariance.Dense, temp2)

	covariance.Dense = newCov

	return nil
}

// project projects the state mean and covariance to measurement space
func (kf *KalmanFilter) project(mean StateMean,
	covariance *StateCov) (StateHMean, *StateHCov) {

	_, size := kf.Dims()

	// project the state mean to measurement space
	projectedMeanVec := mat.NewVecDense(kf.ndim, nil)
	projectedMeanVec.MulVec(kf.updateMat, mat.NewVecDense(size, mean))

	// project the state covariance to measurement space
	temp := mat.NewDense(kf.ndim, size, nil)
	temp.Mul(kf.updateMat, covariance.Dense)
	temp2 := mat.NewDense(kf.ndim, kf.ndim, nil)
	temp2.Mul(temp, kf.updateMat.T())

	// symmetrize and add the measurement noise on the diagonal
	projectedCov := mat.NewSymDense(kf.ndim, nil)

	for i := 0; i < kf.ndim; i++ {
		for j := i; j < kf.ndim; j++ {
			v := (temp2.At(i, j) + temp2.At(j, i)) / 2
			if i == j {
				v += kf.params.MeasurementNoise
			}
			projectedCov.SetSym(i, j, v)
		}
	}

	projectedMean := make(StateHMean, kf.ndim)
	copy(projectedMean, projectedMeanVec.RawVector().Data)

	return projectedMean, &StateHCov{projectedCov}
}

// factorial returns n! for small n
func factorial(n int) float64 {

	f := 1.0

	for i := 2; i <= n; i++ {
		f *= float64(i)
	}

	return f
}
