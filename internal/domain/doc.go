// Package domain models earthquake observations published by the Kandilli
// Observatory feed.
//
// # Data Source
//
// Records come from the public Kandilli proxy API at
// https://api.orhanaydogdu.com.tr/deprem/kandilli. Two endpoints are used:
//
//	/live                     recent earthquakes, newest first (provider order)
//	/archive?date=YYYY-MM-DD  earthquakes recorded on one calendar day
//
// Both return JSON, either a bare array of records or an envelope object with
// the array under "result". The adapter in internal/adapter/kandilli hands the
// decoded objects to this package as [RawRecord] values.
//
// # Raw Record Fields
//
// Only the fields below are consumed. Everything else is ignored.
//
//	earthquake_id                               stable provider ID, primary key
//	provider                                    agency name, e.g. "kandilli"
//	title                                       location label, e.g. "SINDIRGI (BALIKESIR)"
//	date (or date_time)                         display timestamp, kept verbatim
//	mag, depth                                  numbers, sometimes numeric strings
//	geojson.coordinates                         [lon, lat]
//	created_at                                  unix seconds
//	location_properties.closestCity             {name, cityCode, distance, population}
//	location_properties.epiCenter.name          epicenter label
//	location_properties.airports[]              {name, distance}
//
// Distances are in meters. The provider does not guarantee any field; see
// [Normalize] for the defaults applied when one is missing or malformed.
//
// # Recency
//
// created_at is the only ordering key. The display date is an opaque string in
// the provider's local format and is never re-parsed. When created_at is absent
// the local wall clock at normalization time is used instead, so freshly seen
// records sort first.
//
// # Magnitude Colour Scale
//
// Map markers are coloured by magnitude, see [MagnitudeColor]:
//
//	≥7 darkred | ≥6 red | ≥5 orange | ≥4 yellow | ≥3 lightgreen | else blue
package domain
