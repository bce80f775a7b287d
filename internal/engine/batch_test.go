package engine

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/cuisine-ocr/internal/catalog"
	"github.com/zombor/cuisine-ocr/internal/extract"
)

// blockingResolver never answers until release is closed
type blockingResolver struct {
	release chan struct{}
}

func (b *blockingResolver) Resolve(name string, candidates []catalog.Entry) catalog.Resolution {
	<-b.release
	return catalog.Resolution{Method: catalog.MethodNone, NeedsCreation: true}
}

var _ = Describe("ProcessWithTimeout", func() {
	var (
		resolver *blockingResolver
		eng      *Engine
	)

	BeforeEach(func() {
		resolver = &blockingResolver{release: make(chan struct{})}
		var err error
		eng, err = New(extract.DefaultRules(), WithResolver(resolver))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		close(resolver.release)
	})

	When("the document takes too long", func() {
		It("should report it as one rejected segment", func() {
			doc := RawDocument{ID: "slow", DocumentType: DocumentZReport, RawText: dinnerReport}
			res, err := eng.ProcessWithTimeout(context.Background(), doc, testSnapshot(), 50*time.Millisecond)

			Expect(err).To(MatchError(ErrTimeout))
			Expect(err).To(MatchError(ErrNoUsableSegments))
			Expect(res).NotTo(BeNil())
			Expect(res.DocumentID).To(Equal("slow"))
			Expect(res.TotalDetected).To(Equal(1))
			Expect(res.SuccessfullyProcessed).To(BeZero())
			Expect(res.RejectedCount).To(Equal(1))
			Expect(res.RejectedInvoices[0].Reason).To(Equal(extract.CodeProcessingTimeout))
			Expect(res.ZReport).To(BeNil())
			Expect(res.Matches).To(BeEmpty())
		})
	})

	When("the caller cancels", func() {
		It("should return the cancellation", func() {
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
			doc := RawDocument{ID: "gone", DocumentType: DocumentZReport, RawText: dinnerReport}
			_, err := eng.ProcessWithTimeout(ctx, doc, testSnapshot(), time.Minute)
			Expect(err).To(MatchError(context.Canceled))
		})
	})
})

var _ = Describe("Batch", func() {
	var (
		eng   *Engine
		docs  []RawDocument
		items []BatchItem
	)

	BeforeEach(func() {
		var err error
		eng, err = New(extract.DefaultRules())
		Expect(err).NotTo(HaveOccurred())
		docs = []RawDocument{
			{ID: "z", DocumentType: DocumentZReport, RawText: dinnerReport},
			{ID: "noise", DocumentType: DocumentZReport, RawText: scanNoise},
			{ID: "invoices", DocumentType: DocumentInvoice, RawText: fourteenInvoices()},
			{ID: "unknown", DocumentType: "ticket_resto", RawText: dinnerReport},
		}
	})

	JustBeforeEach(func() {
		items = eng.Batch(context.Background(), docs, testSnapshot(), WithWorkers(2), WithTimeout(10*time.Second))
	})

	It("should return one item per document in input order", func() {
		Expect(items).To(HaveLen(4))
		for i, item := range items {
			Expect(item.DocumentID).To(Equal(docs[i].ID))
		}
	})

	It("should isolate failures", func() {
		Expect(items[0].Err).NotTo(HaveOccurred())
		Expect(items[0].Result.ZReport.RawItems).To(HaveLen(8))

		Expect(items[1].Err).To(MatchError(ErrNoUsableSegments))
		Expect(items[1].Error).NotTo(BeEmpty())
		Expect(items[1].Result.RejectedCount).To(Equal(1))

		Expect(items[2].Err).NotTo(HaveOccurred())
		Expect(items[2].Result.TotalDetected).To(Equal(14))

		Expect(items[3].Err).To(MatchError(ErrUnknownDocumentType))
		Expect(items[3].Result).To(BeNil())
	})
})
