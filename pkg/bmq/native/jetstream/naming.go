package jetstream

import (
	"strings"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
)

const subjectPrefix = "bmq"

// Subject tokens and JetStream names share one alphabet so that no two domains
// end up with overlapping stream subjects.
var nameReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "/", "_", "\\", "_")

// names maps a queue URI onto JetStream objects: one work-queue stream per domain
// and one durable push consumer per queue, shared by every reader as a deliver group.
type names struct {
	stream   string
	subjects string
	subject  string
	durable  string
	deliver  string
}

func namesFor(uri string) (names, error) {
	u, err := bmqt.ParseURI(uri)
	if err != nil {
		return names{}, err
	}

	domain := nameReplacer.Replace(u.Domain)
	queue := nameReplacer.Replace(u.Queue)
	durable := domain + "_" + queue

	return names{
		stream:   "BMQ_" + strings.ToUpper(domain),
		subjects: subjectPrefix + "." + domain + ".>",
		subject:  subjectPrefix + "." + domain + "." + queue,
		durable:  durable,
		deliver:  subjectPrefix + ".deliver." + durable,
	}, nil
}
