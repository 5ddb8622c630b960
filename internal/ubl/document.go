// Package ubl reads Turkish UBL-TR e-invoice documents into models.Invoice.
package ubl

import "encoding/xml"

// Element names are matched by local name so the inv/cac/cbc prefixes
// used by the various issuers do not matter.

type xmlInvoice struct {
	XMLName       xml.Name  `xml:"Invoice"`
	ID            string    `xml:"ID"`
	IssueDate     string    `xml:"IssueDate"`
	Notes         []string  `xml:"Note"`
	TaxAmounts    []string  `xml:"TaxTotal>TaxAmount"`
	PayableAmount string    `xml:"LegalMonetaryTotal>PayableAmount"`
	Supplier      xmlParty  `xml:"AccountingSupplierParty>Party"`
	Customer      xmlParty  `xml:"AccountingCustomerParty>Party"`
	Lines         []xmlLine `xml:"InvoiceLine"`
}

type xmlParty struct {
	Identifications []xmlID    `xml:"PartyIdentification>ID"`
	Name            string     `xml:"PartyName>Name"`
	Person          *xmlPerson `xml:"Person"`
}

type xmlID struct {
	Value    string `xml:",chardata"`
	SchemeID string `xml:"schemeID,attr"`
}

type xmlPerson struct {
	FirstName  string `xml:"FirstName"`
	FamilyName string `xml:"FamilyName"`
}

type xmlLine struct {
	Quantity        string   `xml:"InvoicedQuantity"`
	LineExtension   string   `xml:"LineExtensionAmount"`
	PriceAmount     string   `xml:"Price>PriceAmount"`
	TaxPercents     []string `xml:"TaxTotal>TaxSubtotal>Percent"`
	ItemName        string   `xml:"Item>Name"`
	ItemDescription string   `xml:"Item>Description"`
	PropertyValues  []string `xml:"Item>AdditionalItemProperty>Value"`
	ItemTaxPercents []string `xml:"Item>ClassifiedTaxCategory>Percent"`
	Inner           []byte   `xml:",innerxml"`
}
