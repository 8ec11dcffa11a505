/*
go-markerpose estimates the 3D pose of square fiducial markers, and of rigid
objects built from several markers, relative to a calibrated camera.

Detections of tags in an image, each an ID and the four image corners of the
tag, are passed to an Estimator which solves the Perspective-n-Point problem
once per free tag and once per configured object.  The marker layout of the
objects is read from a YAML document by the markers package, and results can
be smoothed over time with the moving average and Kalman filters of the
tracker package, composed by a Pipeline.

See example code and usage in the example subdirectory.
*/
package markerpose
