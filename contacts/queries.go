package contacts

const contactFields = `id name email phone subject message consent`

const listQuery = `query GetContacts($filter: ContactsFilter, $sort: ContactsSort, $pagination: ContactsPagination) {
  contacts(filter: $filter, sort: $sort, pagination: $pagination) {
    contacts { ` + contactFields + ` }
    total
    page
    limit
    totalPages
  }
}`

const getQuery = `query ($id: ID!) { contact(id: $id) { ` + contactFields + ` } }`

const addMutation = `mutation ($input: ContactInput!) { addContact(input: $input) { ` + contactFields + ` } }`

const updateMutation = `mutation ($id: ID!, $input: ContactInput!) { updateContact(id: $id, input: $input) { ` + contactFields + ` } }`

const deleteMutation = `mutation ($id: ID!) { deleteContact(id: $id) }`
