// Package links builds the absolute URLs handed to the pipeline, mailed to
// end users and returned in API representations.
package links

import (
	"strings"

	"github.com/google/uuid"
)

const apiPrefix = "/api/v1"

type Builder struct {
	base string
}

// New takes the externally reachable root of this service, e.g.
// https://tak.example.com. A trailing slash is dropped.
func New(publicURL string) Builder {
	return Builder{base: strings.TrimRight(publicURL, "/")}
}

func (b Builder) Callback(instanceID uuid.UUID) string {
	return b.base + apiPrefix + "/tak/callbacks/" + instanceID.String()
}

func (b Builder) OwnerInstructions(instanceID uuid.UUID) string {
	return b.base + apiPrefix + "/tak/instances/" + instanceID.String() + "/instructions"
}

func (b Builder) EndUserInstructions(instanceID uuid.UUID) string {
	return b.OwnerInstructions(instanceID) + "/enduser"
}

func (b Builder) NextClient(sequenceID uuid.UUID) string {
	return b.base + apiPrefix + "/sequences/nextclient/" + sequenceID.String()
}

func (b Builder) ClientInstructions(clientID uuid.UUID) string {
	return b.base + apiPrefix + "/tak/clients/" + clientID.String() + "/instructions"
}

func (b Builder) ClientZip(clientID uuid.UUID) string {
	return b.ClientInstructions(clientID) + "/zip"
}
