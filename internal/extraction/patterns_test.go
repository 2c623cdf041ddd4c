package extraction

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Patterns", func() {
	Describe("DefaultPatterns", func() {
		It("should define candidates for every field", func() {
			patterns := DefaultPatterns()
			for _, field := range fieldOrder {
				Expect(patterns[field]).NotTo(BeEmpty(), string(field))
			}
		})

		It("should compile", func() {
			_, err := compilePatterns(nil)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("LoadPatterns", func() {
		var (
			input    string
			patterns map[Field][]string
			err      error
		)

		JustBeforeEach(func() {
			patterns, err = LoadPatterns(strings.NewReader(input))
		})

		When("the file names known fields", func() {
			BeforeEach(func() {
				input = `{"invoice_number": ["ref\\s*:\\s*(\\S+)"]}`
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the listed patterns", func() {
				Expect(patterns).To(HaveKeyWithValue(FieldInvoiceNumber, []string{`ref\s*:\s*(\S+)`}))
			})
		})

		When("the file names an unknown field", func() {
			BeforeEach(func() {
				input = `{"airline": ["(.*)"]}`
			})

			It("should return an error", func() {
				Expect(err).To(MatchError(ContainSubstring("unknown field")))
			})
		})

		When("the file is not JSON", func() {
			BeforeEach(func() {
				input = `invoice_number: nope`
			})

			It("should return an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("NewExtractor with overrides", func() {
		When("a field is overridden", func() {
			It("should use only the override for that field", func() {
				extractor, err := NewExtractor(map[Field][]string{
					FieldInvoiceNumber: {`ref\s*:\s*(\S+)`},
				})
				Expect(err).NotTo(HaveOccurred())

				record, err := extractor.Extract("Ref: ABC-1\nInvoice No: INV-2", 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(record.InvoiceNumber).To(Equal("ABC-1"))
			})
		})

		When("an override is malformed", func() {
			It("should return an engine fault naming the field", func() {
				_, err := NewExtractor(map[Field][]string{
					FieldDate: {`(unclosed`},
				})
				Expect(errors.Is(err, ErrEngineFault)).To(BeTrue())

				var fault *EngineFault
				Expect(errors.As(err, &fault)).To(BeTrue())
				Expect(fault.Field).To(Equal("date"))
			})
		})

		When("an override has no capture group", func() {
			It("should return an engine fault", func() {
				_, err := NewExtractor(map[Field][]string{
					FieldAmount: {`total`},
				})
				Expect(errors.Is(err, ErrEngineFault)).To(BeTrue())
			})
		})

		When("an override names an unknown field", func() {
			It("should return an engine fault", func() {
				_, err := NewExtractor(map[Field][]string{
					Field("airline"): {`(x)`},
				})
				Expect(errors.Is(err, ErrEngineFault)).To(BeTrue())
			})
		})

		When("a field is overridden with an empty list", func() {
			It("should always synthesize that field", func() {
				extractor, err := NewExtractor(map[Field][]string{
					FieldTaxID: {},
				})
				Expect(err).NotTo(HaveOccurred())

				record, err := extractor.Extract("GSTIN: 29ABCDE1234F1ZX", 9)
				Expect(err).NotTo(HaveOccurred())
				Expect(record.TaxID).To(Equal(SynthesizeTaxID(9)))
			})
		})
	})
})
