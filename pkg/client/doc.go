/*
Package client submits jobs to a Drover master.

Submit drives the client half of the submission protocol over a single
connection: metadata, executable upload, input upload, output request,
output download. A session either yields the complete output buffer or one
failure token followed by a closed socket; there is no partial result.

One connection carries exactly one job.
*/
package client
