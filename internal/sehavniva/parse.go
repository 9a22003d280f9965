package sehavniva

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/rtm0/stormsurge/internal/tide"
)

var (
	// ErrMalformed is returned for responses that cannot be decoded.
	ErrMalformed = errors.New("malformed response")
	// ErrAPI is returned when the service answers with an error document.
	ErrAPI = errors.New("api error")
)

// Levels in the unit and reference the archive stores are reported under
// their bare type; anything else keeps the full type_unit_reference label.
const (
	archiveUnit      = "cm"
	archiveReference = "CD"
)

// ParseStations decodes a stationlist response. Bounds are left zero.
func ParseStations(body []byte) ([]tide.Station, error) {
	var stations []tide.Station
	err := walk(body, func(se xml.StartElement) error {
		if se.Name.Local != "location" {
			return nil
		}
		st := tide.Station{ID: attr(se, "code"), Name: attr(se, "name")}
		if st.ID == "" {
			return fmt.Errorf("%w: location without code", ErrMalformed)
		}
		var err error
		if st.Latitude, err = floatAttr(se, "latitude"); err != nil {
			return err
		}
		if st.Longitude, err = floatAttr(se, "longitude"); err != nil {
			return err
		}
		stations = append(stations, st)
		return nil
	})
	return stations, err
}

// ParseBounds decodes an obstime response.
func ParseBounds(body []byte) (tide.Bounds, error) {
	var (
		b     tide.Bounds
		found bool
	)
	err := walk(body, func(se xml.StartElement) error {
		if se.Name.Local != "obstime" || found {
			return nil
		}
		var err error
		if b.First, err = timeAttr(se, "first"); err != nil {
			return err
		}
		if b.Last, err = timeAttr(se, "last"); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return tide.Bounds{}, err
	}
	if !found {
		return tide.Bounds{}, fmt.Errorf("%w: no obstime element", ErrMalformed)
	}
	return b, nil
}

// ParseSeries decodes a stationdata response into samples in document order.
func ParseSeries(body []byte) ([]tide.Sample, error) {
	var (
		samples []tide.Sample
		kind    tide.Kind
	)
	err := walk(body, func(se xml.StartElement) error {
		switch se.Name.Local {
		case "data":
			kind = dataKind(attr(se, "type"), attr(se, "unit"), attr(se, "reflevelcode"))
		case "waterlevel":
			if kind == "" {
				return fmt.Errorf("%w: waterlevel outside of data", ErrMalformed)
			}
			v, err := floatAttr(se, "value")
			if err != nil {
				return err
			}
			t, err := timeAttr(se, "time")
			if err != nil {
				return err
			}
			samples = append(samples, tide.Sample{Kind: kind, Time: t, Value: v})
		}
		return nil
	})
	return samples, err
}

func dataKind(typ, unit, ref string) tide.Kind {
	if unit == archiveUnit && ref == archiveReference {
		return tide.Kind(typ)
	}
	return tide.Kind(strings.Join([]string{typ, unit, ref}, "_"))
}

// walk calls fn for every start element of the document.
func walk(body []byte, fn func(xml.StartElement) error) error {
	d := xml.NewDecoder(bytes.NewReader(body))
	d.CharsetReader = charsetReader
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local == "error" {
			var msg string
			if err := d.DecodeElement(&msg, &se); err != nil {
				return fmt.Errorf("%w: %w", ErrMalformed, err)
			}
			return fmt.Errorf("%w: %s", ErrAPI, strings.TrimSpace(msg))
		}
		if err := fn(se); err != nil {
			return err
		}
	}
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func floatAttr(se xml.StartElement, name string) (float64, error) {
	v, err := strconv.ParseFloat(attr(se, name), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", ErrMalformed, se.Name.Local, name, err)
	}
	return v, nil
}

func timeAttr(se xml.StartElement, name string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, attr(se, name))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %s: %w", ErrMalformed, se.Name.Local, name, err)
	}
	return t.UTC(), nil
}
