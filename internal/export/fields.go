package export

import "github.com/suyashkumar/dicom/pkg/tag"

// VendorCustomField is a private vendor element that carries site identifiers.
var VendorCustomField = tag.Tag{Group: 0x0014, Element: 0x03E9}

// DefaultAnonymizeFields are removed by Anonymize when no field list is given.
var DefaultAnonymizeFields = []tag.Tag{
	tag.InstanceCreatorUID,
	tag.SOPInstanceUID,
	tag.AccessionNumber,
	tag.InstitutionName,
	tag.InstitutionAddress,
	tag.ReferringPhysicianName,
	tag.ReferringPhysicianAddress,
	tag.ReferringPhysicianTelephoneNumbers,
	tag.StationName,
	tag.StudyDescription,
	tag.SeriesDescription,
	tag.InstitutionalDepartmentName,
	tag.PhysiciansOfRecord,
	tag.PerformingPhysicianName,
	tag.NameOfPhysiciansReadingStudy,
	tag.OperatorsName,
	tag.AdmittingDiagnosesDescription,
	tag.ReferencedSOPInstanceUID,
	tag.DerivationDescription,
	tag.PatientName,
	tag.PatientID,
	tag.PatientBirthDate,
	tag.PatientBirthTime,
	tag.PatientSex,
	tag.PatientAge,
	VendorCustomField,
}
