// Package gpu samples per-process GPU memory usage from nvidia-smi.
//
// The sampler runs the compute-apps accounting query and the parser turns
// its CSV-ish output (`pid, used_gpu_memory [MiB]` with one header line)
// into a PID → used-MiB mapping. Rows for the sampling process itself and
// malformed or placeholder rows are dropped rather than failing the parse,
// since the accounting table varies across driver versions.
package gpu
